package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/repository"
	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// JobRunner 執行單一 job 的 pipeline
type JobRunner interface {
	Run(ctx context.Context, job domain.TranscodeJob) (domain.PipelineResult, error)
}

// Consumer 從佇列取 job 交給 pipeline，並維護 job 記錄的狀態
type Consumer struct {
	dispatcher  repository.JobDispatcher
	jobs        repository.JobRepo
	guard       repository.ETagGuard
	runner      JobRunner
	concurrency int
	jobTimeout  time.Duration
}

// NewConsumer 建構 Consumer 實例；guard 可為 nil (不做 ETag 去重)
func NewConsumer(dispatcher repository.JobDispatcher, jobs repository.JobRepo, guard repository.ETagGuard,
	runner JobRunner, concurrency int, jobTimeout time.Duration) *Consumer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Consumer{
		dispatcher:  dispatcher,
		jobs:        jobs,
		guard:       guard,
		runner:      runner,
		concurrency: concurrency,
		jobTimeout:  jobTimeout,
	}
}

// StartConsumer 啟動 concurrency 個彼此獨立的循序 consumer，直到 ctx 結束
func (c *Consumer) StartConsumer(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.concurrency; i++ {
		g.Go(func() error {
			logger.Log.Info("consumer started", zap.Int("consumer", i))
			err := c.dispatcher.Consume(gctx, c.HandleJob)
			if IsCancellation(err) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// HandleJob Queued -> Running -> Succeeded | Failed；重複投遞已離開 Queued 的 job 直接略過
func (c *Consumer) HandleJob(ctx context.Context, job domain.TranscodeJob) error {
	log := []zap.Field{zap.String("job_id", job.JobID), zap.String("source_etag", job.SourceETag)}

	if err := c.markRunning(ctx, job); err != nil {
		if errors.Is(err, &domain.JobError{Kind: domain.JobInvalidTransition}) {
			logger.Log.Warn("job 已被處理過，略過重複投遞", append(log, zap.Error(err))...)
			return nil
		}
		// 訊息處理完會被 ack，不能讓記錄停在 Queued
		runErr := fmt.Errorf("mark job running: %w", err)
		c.finish(ctx, job.JobID, domain.JobFailed, repository.JobUpdate{Error: runErr.Error()})
		return runErr
	}

	if c.guard != nil {
		claimed, err := c.guard.Claim(ctx, job.SourceETag, job.JobID)
		if err != nil {
			logger.Log.Warn("ETag 去重檢查失敗，繼續處理", append(log, zap.Error(err))...)
		} else if !claimed {
			dup := &domain.JobError{Kind: domain.JobDuplicate, JobID: job.JobID,
				Msg: fmt.Sprintf("source %s is already being processed", job.SourceETag)}
			c.finish(ctx, job.JobID, domain.JobFailed, repository.JobUpdate{Error: dup.Error()})
			return dup
		}
	}

	jobCtx := ctx
	if c.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, c.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := c.runner.Run(jobCtx, job)
	if err != nil {
		if c.guard != nil {
			// 釋放 claim，明確重新送出的 job 才能再處理同一個來源
			if rErr := c.guard.Release(context.WithoutCancel(ctx), job.SourceETag); rErr != nil {
				logger.Log.Warn("釋放 ETag claim 失敗", append(log, zap.Error(rErr))...)
			}
		}
		c.finish(ctx, job.JobID, domain.JobFailed, repository.JobUpdate{VideoID: result.VideoID, Error: err.Error()})
		return err
	}

	c.finish(ctx, job.JobID, domain.JobSucceeded, repository.JobUpdate{VideoID: result.VideoID})
	logger.Log.Info("transcode job succeeded", append(log,
		zap.String("video_id", result.VideoID),
		zap.Strings("renditions", result.Renditions),
		zap.Duration("elapsed", time.Since(start)),
	)...)
	return nil
}

// markRunning 找不到記錄時 (例如直接寫入佇列的訊息) 先補建 Queued 記錄
func (c *Consumer) markRunning(ctx context.Context, job domain.TranscodeJob) error {
	err := c.jobs.Transition(ctx, job.JobID, domain.JobRunning, repository.JobUpdate{})
	if !errors.Is(err, &domain.JobError{Kind: domain.JobNotFound}) {
		return err
	}

	record := job
	record.Status = domain.JobQueued
	record.UpdatedAt = time.Now().UTC()
	if record.SubmittedAt.IsZero() {
		record.SubmittedAt = record.UpdatedAt
	}
	if err := c.jobs.Create(ctx, &record); err != nil {
		return err
	}
	return c.jobs.Transition(ctx, job.JobID, domain.JobRunning, repository.JobUpdate{})
}

func (c *Consumer) finish(ctx context.Context, jobID string, to domain.JobStatus, upd repository.JobUpdate) {
	// job 逾時後仍需寫入終止狀態
	if err := c.jobs.Transition(context.WithoutCancel(ctx), jobID, to, upd); err != nil {
		logger.Log.Error("更新 job 狀態失敗",
			zap.String("job_id", jobID),
			zap.String("status", string(to)),
			zap.Error(err),
		)
	}
}
