package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"video_ingest_service/internal/ingest/domain"

	"github.com/gofiber/fiber/v2"
)

// MetadataClient video metadata service callbacks
type MetadataClient interface {
	CreateVideo(ctx context.Context, req domain.CreateVideoReq) (domain.VideoAsset, error)
	CompleteVideo(ctx context.Context, req domain.CompleteVideoReq) error
	DeleteVideo(ctx context.Context, videoID string) error
}

type httpMetadataClient struct {
	baseURL string
	timeout time.Duration
}

// NewHTTPMetadataClient 使用 fiber Agent 呼叫 metadata service
func NewHTTPMetadataClient(baseURL string, timeout time.Duration) MetadataClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpMetadataClient{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

// videoID metadata service 可能回傳數字或字串的 video_id
type videoID string

func (v *videoID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = videoID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*v = videoID(n.String())
	return nil
}

type createVideoRes struct {
	Video struct {
		VideoID videoID `json:"video_id"`
		Status  string  `json:"status"`
	} `json:"video"`
}

func (c *httpMetadataClient) CreateVideo(ctx context.Context, req domain.CreateVideoReq) (domain.VideoAsset, error) {
	const op = "create_video"
	code, body, err := c.do(ctx, fiber.Post(c.baseURL+"/api/video"), req)
	if err != nil {
		return domain.VideoAsset{}, &domain.MetadataError{Op: op, StatusCode: code, Err: err}
	}

	var res createVideoRes
	if err := json.Unmarshal(body, &res); err != nil {
		return domain.VideoAsset{}, &domain.MetadataError{Op: op, StatusCode: code, Err: fmt.Errorf("decode response: %w", err)}
	}
	if res.Video.VideoID == "" {
		return domain.VideoAsset{}, &domain.MetadataError{Op: op, StatusCode: code, Err: errors.New("response has no video_id")}
	}
	return domain.VideoAsset{ID: string(res.Video.VideoID), Status: domain.AssetPending}, nil
}

func (c *httpMetadataClient) CompleteVideo(ctx context.Context, req domain.CompleteVideoReq) error {
	endpoint := fmt.Sprintf("%s/api/videos/%s/transcoding/complete", c.baseURL, url.PathEscape(req.VideoID))
	code, _, err := c.do(ctx, fiber.Post(endpoint), req)
	if err != nil {
		return &domain.MetadataError{Op: "complete_video", StatusCode: code, Err: err}
	}
	return nil
}

// DeleteVideo 補償刪除；對方已不存在 (404) 視為成功
func (c *httpMetadataClient) DeleteVideo(ctx context.Context, videoID string) error {
	endpoint := fmt.Sprintf("%s/api/video/%s", c.baseURL, url.PathEscape(videoID))
	code, _, err := c.do(ctx, fiber.Delete(endpoint), nil)
	if code == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return &domain.MetadataError{Op: "delete_video", StatusCode: code, Err: err}
	}
	return nil
}

func (c *httpMetadataClient) do(ctx context.Context, a *fiber.Agent, payload interface{}) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		fiber.ReleaseAgent(a)
		return 0, nil, err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	a.Timeout(timeout)
	if payload != nil {
		a.JSON(payload)
	}
	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return 0, nil, err
	}

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return code, body, errors.Join(errs...)
	}
	if code < 200 || code >= 300 {
		return code, body, fmt.Errorf("unexpected status %d: %s", code, strings.TrimSpace(string(body)))
	}
	return code, body, nil
}
