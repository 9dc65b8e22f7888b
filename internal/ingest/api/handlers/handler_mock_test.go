package handlers

import (
	"context"
	"io"
	"sync"

	"video_ingest_service/internal/ingest/app"
	"video_ingest_service/internal/ingest/domain"

	"github.com/stretchr/testify/mock"
)

type MockUploadUseCase struct {
	mock.Mock
}

func (m *MockUploadUseCase) Initiate(ctx context.Context, fileName string) (string, error) {
	args := m.Called(ctx, fileName)
	return args.String(0), args.Error(1)
}

func (m *MockUploadUseCase) UploadPart(ctx context.Context, req app.UploadPartReq) (string, error) {
	// 讀出內容方便斷言
	body, _ := io.ReadAll(req.Data)
	req.Data = nil
	args := m.Called(ctx, req, string(body))
	return args.String(0), args.Error(1)
}

func (m *MockUploadUseCase) Complete(ctx context.Context, uploadID, fileName string, parts []domain.PartTag) (domain.CompletedUpload, error) {
	args := m.Called(ctx, uploadID, fileName, parts)
	return args.Get(0).(domain.CompletedUpload), args.Error(1)
}

func (m *MockUploadUseCase) Abort(ctx context.Context, uploadID string) error {
	args := m.Called(ctx, uploadID)
	return args.Error(0)
}

type MockJobUseCase struct {
	mock.Mock
}

func (m *MockJobUseCase) Submit(ctx context.Context, req domain.SubmitJobReq) (domain.TranscodeJob, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.TranscodeJob), args.Error(1)
}

func (m *MockJobUseCase) Get(ctx context.Context, jobID string) (*domain.TranscodeJob, error) {
	args := m.Called(ctx, jobID)
	job, _ := args.Get(0).(*domain.TranscodeJob)
	return job, args.Error(1)
}

// fakeSubscriber 保存 handler，由測試主動推送 transition
type fakeSubscriber struct {
	mu         sync.Mutex
	handlers   map[string]func(domain.Transition)
	subscribed chan string
	err        error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{handlers: make(map[string]func(domain.Transition)), subscribed: make(chan string, 4)}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, jobID string, handler func(domain.Transition)) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.handlers[jobID] = handler
	f.mu.Unlock()
	f.subscribed <- jobID
	return nil
}

func (f *fakeSubscriber) emit(t domain.Transition) {
	f.mu.Lock()
	h := f.handlers[t.JobID]
	f.mu.Unlock()
	h(t)
}
