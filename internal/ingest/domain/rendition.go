package domain

import (
	"fmt"

	"video_ingest_service/pkg"
)

// Dimensions video width x height
type Dimensions struct {
	Width  int
	Height int
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// RenditionProfile 一個解析度設定；Bandwidth 為固定查表值，不是實際量測碼率
type RenditionProfile struct {
	Label      string
	Dimensions Dimensions
	Bandwidth  int
}

// DimensionTable label -> profile
type DimensionTable map[string]RenditionProfile

// DefaultDimensionTable 固定的解析度與頻寬對照表
var DefaultDimensionTable = DimensionTable{
	"240p":  {Label: "240p", Dimensions: Dimensions{426, 240}, Bandwidth: 400000},
	"360p":  {Label: "360p", Dimensions: Dimensions{640, 360}, Bandwidth: 800000},
	"480p":  {Label: "480p", Dimensions: Dimensions{854, 480}, Bandwidth: 1400000},
	"720p":  {Label: "720p", Dimensions: Dimensions{1280, 720}, Bandwidth: 2800000},
	"1080p": {Label: "1080p", Dimensions: Dimensions{1920, 1080}, Bandwidth: 5000000},
}

// Profiles 依 labels 的順序取出 profile，未知 label 回傳錯誤
func (t DimensionTable) Profiles(labels []string) ([]RenditionProfile, error) {
	out := make([]RenditionProfile, 0, len(labels))
	seen := make([]string, 0, len(labels))
	for _, label := range labels {
		// 同一解析度重複會寫到同一組 object
		if pkg.Contains(seen, label) {
			return nil, fmt.Errorf("%w: duplicate resolution label %q", ErrInvalidArgument, label)
		}
		seen = append(seen, label)
		p, ok := t[label]
		if !ok {
			return nil, fmt.Errorf("%w: unknown resolution label %q", ErrInvalidArgument, label)
		}
		out = append(out, p)
	}
	return out, nil
}

// Rendition 單一解析度的轉碼結果，只存在於 job 執行期間
type Rendition struct {
	Profile      RenditionProfile
	EncodedPath  string
	SegmentPaths []string
	PlaylistPath string
}
