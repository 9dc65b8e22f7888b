package domain

import "time"

// PipelineState orchestrator state
type PipelineState string

const (
	StateCreated                 PipelineState = "Created"
	StateSourceResolved          PipelineState = "SourceResolved"
	StateThumbnailExtracted      PipelineState = "ThumbnailExtracted"
	StateRenditionsEncoded       PipelineState = "RenditionsEncoded"
	StateSegmentsUploaded        PipelineState = "SegmentsUploaded"
	StateMasterPlaylistPublished PipelineState = "MasterPlaylistPublished"
	StateArchived                PipelineState = "Archived"
	StateCompleted               PipelineState = "Completed"
	StateFailed                  PipelineState = "Failed"
)

// Terminal 是否為終止狀態
func (s PipelineState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Transition 一次狀態轉換事件，送往 audit log 與 websocket
type Transition struct {
	JobID   string        `json:"job_id" bson:"job_id"`
	VideoID string        `json:"video_id,omitempty" bson:"video_id,omitempty"`
	From    PipelineState `json:"from" bson:"from"`
	To      PipelineState `json:"to" bson:"to"`
	Error   string        `json:"error,omitempty" bson:"error,omitempty"`
	At      time.Time     `json:"at" bson:"at"`
}

// PipelineResult 成功時回報給 metadata service 的三個 URL
type PipelineResult struct {
	VideoID      string
	SourceKey    string
	VideoURL     string
	ThumbnailURL string
	ArchivedURL  string
	Renditions   []string
}
