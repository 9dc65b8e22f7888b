package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/repository"
	errprocess "video_ingest_service/pkg/err"
	"video_ingest_service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobUseCase 轉碼工作的送出與查詢
type JobUseCase interface {
	Submit(ctx context.Context, req domain.SubmitJobReq) (domain.TranscodeJob, error)
	Get(ctx context.Context, jobID string) (*domain.TranscodeJob, error)
}

type jobUseCase struct {
	jobs       repository.JobRepo
	dispatcher repository.JobDispatcher
}

// NewJobUseCase create JobUseCase
func NewJobUseCase(jobs repository.JobRepo, dispatcher repository.JobDispatcher) JobUseCase {
	return &jobUseCase{jobs: jobs, dispatcher: dispatcher}
}

// Submit 建立 Queued 記錄後送入佇列；送不進佇列就把記錄標成 Failed
func (j *jobUseCase) Submit(ctx context.Context, req domain.SubmitJobReq) (domain.TranscodeJob, error) {
	etag := repository.NormalizeETag(strings.TrimSpace(req.FinalETag))
	if etag == "" {
		return domain.TranscodeJob{}, fmt.Errorf("%w: finalETag is required", domain.ErrInvalidArgument)
	}

	now := time.Now().UTC()
	job := domain.TranscodeJob{
		JobID:       uuid.NewString(),
		SourceETag:  etag,
		Title:       req.Title,
		Description: req.Description,
		OwnerID:     req.UserID,
		SubmittedAt: now,
		Status:      domain.JobQueued,
		UpdatedAt:   now,
	}
	if err := j.jobs.Create(ctx, &job); err != nil {
		return domain.TranscodeJob{}, errprocess.Wrap(err, "建立轉碼工作記錄失敗", zap.String("source_etag", etag))
	}

	if err := j.dispatcher.Publish(ctx, job); err != nil {
		if tErr := j.jobs.Transition(ctx, job.JobID, domain.JobFailed, repository.JobUpdate{Error: err.Error()}); tErr != nil {
			logger.Log.Warn("標記 job 失敗狀態失敗", zap.String("job_id", job.JobID), zap.Error(tErr))
		}
		return domain.TranscodeJob{}, errprocess.Wrap(err, "送出轉碼工作失敗", zap.String("job_id", job.JobID))
	}

	logger.Log.Info("transcode job queued",
		zap.String("job_id", job.JobID),
		zap.String("source_etag", job.SourceETag),
		zap.String("owner_id", job.OwnerID),
	)
	return job, nil
}

func (j *jobUseCase) Get(ctx context.Context, jobID string) (*domain.TranscodeJob, error) {
	if jobID == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrInvalidArgument)
	}
	return j.jobs.GetByID(ctx, jobID)
}
