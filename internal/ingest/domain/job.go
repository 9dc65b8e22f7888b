package domain

import "time"

const (
	// QueueName definition queue / topic name
	QueueName = "transcode"
)

// JobStatus transcode job status
type JobStatus string

const (
	// JobQueued 已送入佇列
	JobQueued JobStatus = "Queued"
	// JobRunning consumer 已取得並開始處理
	JobRunning JobStatus = "Running"
	// JobSucceeded 處理完成
	JobSucceeded JobStatus = "Succeeded"
	// JobFailed 處理失敗，需明確重新送出
	JobFailed JobStatus = "Failed"
)

// Terminal 是否為終止狀態
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// CanTransition Queued -> Running -> {Succeeded | Failed}；
// Queued 也可直接 Failed (送入佇列失敗)，不允許回到 Queued
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobQueued:
		return to == JobRunning || to == JobFailed
	case JobRunning:
		return to == JobSucceeded || to == JobFailed
	default:
		return false
	}
}

// Predecessors 可以轉換到 to 的狀態
func Predecessors(to JobStatus) []JobStatus {
	var out []JobStatus
	for _, s := range []JobStatus{JobQueued, JobRunning, JobSucceeded, JobFailed} {
		if s.CanTransition(to) {
			out = append(out, s)
		}
	}
	return out
}

// TranscodeJob 轉碼工作，同時是佇列訊息與資料庫記錄
type TranscodeJob struct {
	JobID       string    `gorm:"primaryKey;type:varchar(36)" json:"job_id"`
	SourceETag  string    `gorm:"index;type:varchar(128)" json:"source_etag"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	OwnerID     string    `gorm:"index" json:"owner_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	Status      JobStatus `gorm:"type:varchar(20);index" json:"status"`
	VideoID     string    `json:"video_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (TranscodeJob) TableName() string {
	return "transcode_jobs"
}

// SubmitJobReq POST /send 的 message 內容
type SubmitJobReq struct {
	FinalETag   string `json:"finalETag"`
	Title       string `json:"title"`
	Description string `json:"description"`
	UserID      string `json:"user_id"`
}
