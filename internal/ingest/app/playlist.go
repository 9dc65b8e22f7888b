package app

import (
	"fmt"
	"strings"

	"video_ingest_service/internal/ingest/domain"
)

// BuildMasterPlaylist 依輸入順序列出每個解析度；BANDWIDTH 為查表值
func BuildMasterPlaylist(profiles []domain.RenditionProfile, segmentSeconds int) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", segmentSeconds)
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	for _, p := range profiles {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n", p.Bandwidth, p.Dimensions)
		fmt.Fprintf(&b, "%s/%s\n", p.Label, playlistName)
	}
	return b.String()
}
