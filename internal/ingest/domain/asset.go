package domain

// VideoAssetStatus video metadata status (由外部 metadata service 擁有)
type VideoAssetStatus string

const (
	// AssetPending 建立後轉碼中
	AssetPending VideoAssetStatus = "pending"
	// AssetCompleted 轉碼完成
	AssetCompleted VideoAssetStatus = "completed"
	// AssetFailed 轉碼失敗
	AssetFailed VideoAssetStatus = "failed"
)

// VideoAsset 外部影片記錄
type VideoAsset struct {
	ID           string           `json:"video_id"`
	Status       VideoAssetStatus `json:"status"`
	VideoURL     string           `json:"video_url,omitempty"`
	ThumbnailURL string           `json:"thumbnail_url,omitempty"`
	ArchivedURL  string           `json:"archived_url,omitempty"`
}

// CreateVideoReq POST /api/video
type CreateVideoReq struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	UserID      string `json:"user_id"`
	ETag        string `json:"etag"`
}

// CompleteVideoReq POST /api/videos/:id/transcoding/complete
type CompleteVideoReq struct {
	VideoID      string `json:"video_id"`
	VideoURL     string `json:"video_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	ArchivedURL  string `json:"archived_url"`
}
