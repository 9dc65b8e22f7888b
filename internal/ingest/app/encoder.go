package app

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
)

const (
	videoCodec  = "libx264"
	videoCRF    = "23"
	videoPreset = "veryfast"
	audioCodec  = "aac"
	audioRate   = "128k"

	segmentPattern = "segment_%03d.ts"
	playlistName   = "playlist.m3u8"

	// stderr 只保留尾端，ffmpeg 的錯誤訊息都在最後
	maxStderrBytes = 4096
)

// RenditionEncoder 影片轉檔工具
type RenditionEncoder interface {
	Thumbnail(ctx context.Context, src, outPath string, at time.Duration) error
	Downscale(ctx context.Context, src string, profile domain.RenditionProfile) (string, error)
	Segment(ctx context.Context, encodedPath, outDir string, segmentSeconds int) ([]string, string, error)
}

// runCommand 執行外部指令並回傳 stderr，ctx 取消時 process 會被 kill
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// createDir 建立輸出目錄
var createDir = func(path string) error {
	return os.MkdirAll(path, 0755)
}

// FFmpegEncoder 以 ffmpeg 執行 RenditionEncoder
type FFmpegEncoder struct {
	bin string
}

// NewFFmpegEncoder bin 為空時使用 PATH 上的 ffmpeg
func NewFFmpegEncoder(bin string) *FFmpegEncoder {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegEncoder{bin: bin}
}

// Thumbnail 擷取 at 時間點的單張畫面
func (f *FFmpegEncoder) Thumbnail(ctx context.Context, src, outPath string, at time.Duration) error {
	args := []string{
		"-y",
		"-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64),
		"-i", src,
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
	}
	return f.run(ctx, "thumbnail", "", args)
}

// DownscaledPath <source>_<label>.<ext>，來源沒有副檔名時用 .mp4
func DownscaledPath(src, label string) string {
	ext := filepath.Ext(src)
	base := strings.TrimSuffix(src, ext)
	if ext == "" {
		ext = ".mp4"
	}
	return fmt.Sprintf("%s_%s%s", base, label, ext)
}

// Downscale 轉成 profile 的解析度，回傳輸出檔路徑
func (f *FFmpegEncoder) Downscale(ctx context.Context, src string, profile domain.RenditionProfile) (string, error) {
	out := DownscaledPath(src, profile.Label)
	args := []string{
		"-y",
		"-i", src,
		"-vf", fmt.Sprintf("scale=%d:%d", profile.Dimensions.Width, profile.Dimensions.Height),
		"-c:v", videoCodec,
		"-crf", videoCRF,
		"-preset", videoPreset,
		"-c:a", audioCodec,
		"-b:a", audioRate,
		out,
	}
	if err := f.run(ctx, "downscale", profile.Label, args); err != nil {
		return "", err
	}
	return out, nil
}

// segmentIndex segment_NNN.ts 的 NNN，無法解析時排在最後
func segmentIndex(path string) int {
	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "segment_"), ".ts")
	n, err := strconv.Atoi(name)
	if err != nil {
		return math.MaxInt
	}
	return n
}

// Segment 切成 HLS segment_NNN.ts 與 playlist.m3u8，回傳依編號排序的 segment 路徑
func (f *FFmpegEncoder) Segment(ctx context.Context, encodedPath, outDir string, segmentSeconds int) ([]string, string, error) {
	if err := createDir(outDir); err != nil {
		return nil, "", fmt.Errorf("建立切片目錄失敗: %w", err)
	}
	label := filepath.Base(outDir)
	playlist := filepath.Join(outDir, playlistName)
	args := []string{
		"-y",
		"-i", encodedPath,
		"-c", "copy",
		"-f", "hls",
		"-hls_time", strconv.Itoa(segmentSeconds),
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(outDir, segmentPattern),
		playlist,
	}
	if err := f.run(ctx, "segment", label, args); err != nil {
		return nil, "", err
	}

	segments, err := filepath.Glob(filepath.Join(outDir, "segment_*.ts"))
	if err != nil {
		return nil, "", fmt.Errorf("列出切片失敗: %w", err)
	}
	// 超過三位數後字串排序會錯，依編號排
	sort.Slice(segments, func(i, j int) bool {
		return segmentIndex(segments[i]) < segmentIndex(segments[j])
	})
	return segments, playlist, nil
}

func (f *FFmpegEncoder) run(ctx context.Context, stage, label string, args []string) error {
	logger.Log.Debug("執行 FFmpeg", zap.String("stage", stage), zap.String("label", label), zap.Strings("args", args))
	stderr, err := runCommand(ctx, f.bin, args...)
	if err == nil {
		return nil
	}
	// 被取消時回傳 ctx 的錯誤，呼叫端才能分辨是 timeout 還是工具失敗
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return &domain.EncodeError{Stage: stage, Label: label, Stderr: tail(stderr, maxStderrBytes), Err: err}
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}
