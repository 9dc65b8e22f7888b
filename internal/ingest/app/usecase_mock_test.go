package app

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/repository"

	"github.com/stretchr/testify/mock"
)

// MockMultipartStore Mock MultipartStore
type MockMultipartStore struct {
	mock.Mock
}

func (m *MockMultipartStore) NewMultipartUpload(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockMultipartStore) PutPart(ctx context.Context, key, uploadID string, partNumber int, data io.Reader, size int64) (string, error) {
	args := m.Called(ctx, key, uploadID, partNumber, data, size)
	return args.String(0), args.Error(1)
}

func (m *MockMultipartStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []domain.PartTag) (domain.CompletedUpload, error) {
	args := m.Called(ctx, key, uploadID, parts)
	return args.Get(0).(domain.CompletedUpload), args.Error(1)
}

func (m *MockMultipartStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	args := m.Called(ctx, key, uploadID)
	return args.Error(0)
}

// MockMetadataClient Mock MetadataClient
type MockMetadataClient struct {
	mock.Mock
}

func (m *MockMetadataClient) CreateVideo(ctx context.Context, req domain.CreateVideoReq) (domain.VideoAsset, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.VideoAsset), args.Error(1)
}

func (m *MockMetadataClient) CompleteVideo(ctx context.Context, req domain.CompleteVideoReq) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockMetadataClient) DeleteVideo(ctx context.Context, videoID string) error {
	args := m.Called(ctx, videoID)
	return args.Error(0)
}

// MockJobDispatcher Mock JobDispatcher
type MockJobDispatcher struct {
	mock.Mock
}

func (m *MockJobDispatcher) Publish(ctx context.Context, job domain.TranscodeJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobDispatcher) Consume(ctx context.Context, handler repository.JobHandler) error {
	args := m.Called(ctx, handler)
	return args.Error(0)
}

func (m *MockJobDispatcher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockJobRunner Mock JobRunner
type MockJobRunner struct {
	mock.Mock
}

func (m *MockJobRunner) Run(ctx context.Context, job domain.TranscodeJob) (domain.PipelineResult, error) {
	args := m.Called(ctx, job)
	return args.Get(0).(domain.PipelineResult), args.Error(1)
}

// MockETagGuard Mock ETagGuard
type MockETagGuard struct {
	mock.Mock
}

func (m *MockETagGuard) Claim(ctx context.Context, etag, jobID string) (bool, error) {
	args := m.Called(ctx, etag, jobID)
	return args.Bool(0), args.Error(1)
}

func (m *MockETagGuard) Release(ctx context.Context, etag string) error {
	args := m.Called(ctx, etag)
	return args.Error(0)
}

// fakeObject in-memory object
type fakeObject struct {
	etag string
	data []byte
}

// fakeStorage in-memory StorageGateway，記錄所有 key 供斷言
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string]fakeObject)}
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// seed 放入原始檔並回傳 ETag
func (s *fakeStorage) seed(key string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	etag := etagOf(data)
	s.objects[key] = fakeObject{etag: etag, data: data}
	return etag
}

func (s *fakeStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *fakeStorage) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *fakeStorage) content(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.objects[key].data)
}

func notFound(op, key string) error {
	return &domain.StorageError{Kind: domain.StorageNotFound, Op: op, Key: key, Err: fmt.Errorf("no such key")}
}

func (s *fakeStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, notFound("get", key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *fakeStorage) Put(ctx context.Context, localPath, key string) (repository.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return repository.UploadResult{}, err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return repository.UploadResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	etag := etagOf(data)
	s.objects[key] = fakeObject{etag: etag, data: data}
	return repository.UploadResult{Key: key, ETag: etag, Size: int64(len(data))}, nil
}

func (s *fakeStorage) Copy(_ context.Context, srcKey, dstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[srcKey]
	if !ok {
		return notFound("copy", srcKey)
	}
	s.objects[dstKey] = obj
	return nil
}

func (s *fakeStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeStorage) List(_ context.Context, prefix string) ([]repository.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.ObjectInfo
	for k, obj := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, repository.ObjectInfo{Key: k, ETag: obj.etag, Size: int64(len(obj.data)), LastModified: time.Now()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *fakeStorage) ObjectURL(key string) string {
	return "http://storage.local/videos/" + key
}

// fakeEncoder 直接寫出假檔案；failLabel 的 Downscale 回傳 EncodeError
type fakeEncoder struct {
	mu         sync.Mutex
	failLabel  string
	segments   int
	downscaled []string
	cancelled  []string
}

func (f *fakeEncoder) Thumbnail(_ context.Context, _, outPath string, _ time.Duration) error {
	return os.WriteFile(outPath, []byte("jpeg"), 0644)
}

func (f *fakeEncoder) Downscale(ctx context.Context, src string, profile domain.RenditionProfile) (string, error) {
	if profile.Label == f.failLabel {
		return "", &domain.EncodeError{Stage: "downscale", Label: profile.Label, Stderr: "Conversion failed!", Err: fmt.Errorf("exit status 1")}
	}
	if f.failLabel != "" {
		// 其他解析度等到被取消為止，模擬仍在執行中的 ffmpeg
		select {
		case <-ctx.Done():
			f.mu.Lock()
			f.cancelled = append(f.cancelled, profile.Label)
			f.mu.Unlock()
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	out := DownscaledPath(src, profile.Label)
	if err := os.WriteFile(out, []byte(profile.Label), 0644); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.downscaled = append(f.downscaled, profile.Label)
	f.mu.Unlock()
	return out, nil
}

func (f *fakeEncoder) Segment(_ context.Context, encodedPath, outDir string, _ int) ([]string, string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, "", err
	}
	n := f.segments
	if n == 0 {
		n = 2
	}
	var segs []string
	for i := 0; i < n; i++ {
		p := filepath.Join(outDir, fmt.Sprintf("segment_%03d.ts", i))
		if err := os.WriteFile(p, []byte(encodedPath), 0644); err != nil {
			return nil, "", err
		}
		segs = append(segs, p)
	}
	playlist := filepath.Join(outDir, playlistName)
	if err := os.WriteFile(playlist, []byte("#EXTM3U\n"), 0644); err != nil {
		return nil, "", err
	}
	return segs, playlist, nil
}

// recordingObserver 收集 transition
type recordingObserver struct {
	mu          sync.Mutex
	transitions []domain.Transition
}

func (r *recordingObserver) OnTransition(_ context.Context, t domain.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *recordingObserver) states() []domain.PipelineState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PipelineState, 0, len(r.transitions))
	for _, t := range r.transitions {
		out = append(out, t.To)
	}
	return out
}
