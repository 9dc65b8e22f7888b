package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"video_ingest_service/internal/ingest/domain"

	"gorm.io/gorm"
)

// JobUpdate 狀態轉換時一併寫入的欄位，空字串表示不更新
type JobUpdate struct {
	VideoID string
	Error   string
}

// JobRepo transcode job 記錄
type JobRepo interface {
	AutoMigrate() error
	Create(ctx context.Context, job *domain.TranscodeJob) error
	GetByID(ctx context.Context, jobID string) (*domain.TranscodeJob, error)
	// Transition 只在目前狀態允許轉換到 to 時才更新 (Queued -> Running -> Succeeded|Failed)
	Transition(ctx context.Context, jobID string, to domain.JobStatus, upd JobUpdate) error
}

func jobNotFound(jobID string) error {
	return &domain.JobError{Kind: domain.JobNotFound, JobID: jobID, Msg: "job not found"}
}

func invalidTransition(jobID string, from, to domain.JobStatus) error {
	return &domain.JobError{Kind: domain.JobInvalidTransition, JobID: jobID,
		Msg: fmt.Sprintf("cannot move from %s to %s", from, to)}
}

type jobRepo struct {
	db *gorm.DB
}

// NewJobRepo create gorm JobRepo
func NewJobRepo(db *gorm.DB) JobRepo {
	return &jobRepo{db: db}
}

func (r *jobRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&domain.TranscodeJob{})
}

func (r *jobRepo) Create(ctx context.Context, job *domain.TranscodeJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *jobRepo) GetByID(ctx context.Context, jobID string) (*domain.TranscodeJob, error) {
	var job domain.TranscodeJob
	if err := r.db.WithContext(ctx).First(&job, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, jobNotFound(jobID)
		}
		return nil, err
	}
	return &job, nil
}

// Transition 用條件式 UPDATE 保證狀態單調，不需要先讀再寫
func (r *jobRepo) Transition(ctx context.Context, jobID string, to domain.JobStatus, upd JobUpdate) error {
	fields := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	if upd.VideoID != "" {
		fields["video_id"] = upd.VideoID
	}
	if upd.Error != "" {
		fields["error"] = upd.Error
	}

	res := r.db.WithContext(ctx).
		Model(&domain.TranscodeJob{}).
		Where("job_id = ? AND status IN ?", jobID, domain.Predecessors(to)).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	current, err := r.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	return invalidTransition(jobID, current.Status, to)
}

type memoryJobRepo struct {
	mu   sync.Mutex
	jobs map[string]domain.TranscodeJob
}

// NewMemoryJobRepo 單機 / 測試用
func NewMemoryJobRepo() JobRepo {
	return &memoryJobRepo{jobs: make(map[string]domain.TranscodeJob)}
}

func (r *memoryJobRepo) AutoMigrate() error { return nil }

func (r *memoryJobRepo) Create(_ context.Context, job *domain.TranscodeJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.JobID]; ok {
		return fmt.Errorf("job %s already exists", job.JobID)
	}
	r.jobs[job.JobID] = *job
	return nil
}

func (r *memoryJobRepo) GetByID(_ context.Context, jobID string) (*domain.TranscodeJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, jobNotFound(jobID)
	}
	return &job, nil
}

func (r *memoryJobRepo) Transition(_ context.Context, jobID string, to domain.JobStatus, upd JobUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return jobNotFound(jobID)
	}
	if !job.Status.CanTransition(to) {
		return invalidTransition(jobID, job.Status, to)
	}
	job.Status = to
	job.UpdatedAt = time.Now().UTC()
	if upd.VideoID != "" {
		job.VideoID = upd.VideoID
	}
	if upd.Error != "" {
		job.Error = upd.Error
	}
	r.jobs[jobID] = job
	return nil
}
