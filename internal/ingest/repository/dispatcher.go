package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"video_ingest_service/internal/ingest/domain"
)

// JobHandler 處理單一 job；回傳的錯誤只用於記錄，訊息不會重新投遞
type JobHandler func(ctx context.Context, job domain.TranscodeJob) error

// JobDispatcher durable job queue
// Consume 為循序消費：一個 job 處理到終止狀態後才取下一個，直到 ctx 結束才返回
type JobDispatcher interface {
	Publish(ctx context.Context, job domain.TranscodeJob) error
	Consume(ctx context.Context, handler JobHandler) error
	Close() error
}

// EncodeJob 序列化 job 訊息
func EncodeJob(job domain.TranscodeJob) ([]byte, error) {
	return json.Marshal(job)
}

// DecodeJob 解析 job 訊息，缺 job_id 或 source_etag 視為 MalformedMessage
func DecodeJob(body []byte) (domain.TranscodeJob, error) {
	var job domain.TranscodeJob
	if err := json.Unmarshal(body, &job); err != nil {
		return job, &domain.JobError{Kind: domain.JobMalformedMessage, Msg: fmt.Sprintf("decode: %v", err)}
	}
	if job.JobID == "" || job.SourceETag == "" {
		return job, &domain.JobError{Kind: domain.JobMalformedMessage, JobID: job.JobID, Msg: "job_id and source_etag are required"}
	}
	return job, nil
}
