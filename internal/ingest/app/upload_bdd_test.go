package app

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/repository"
	"video_ingest_service/pkg/logger"

	"github.com/cucumber/godog"
)

// memoryMultipartStore 以 S3 的規則產生 ETag：part 為內容 md5，組裝後為 md5(parts)-N
type memoryMultipartStore struct {
	mu        sync.Mutex
	uploads   map[string]map[int]string
	completed map[string]domain.CompletedUpload
	seq       int
}

func newMemoryMultipartStore() *memoryMultipartStore {
	return &memoryMultipartStore{uploads: make(map[string]map[int]string), completed: make(map[string]domain.CompletedUpload)}
}

func (m *memoryMultipartStore) NewMultipartUpload(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("upload-%d", m.seq)
	m.uploads[id] = make(map[int]string)
	return id, nil
}

func (m *memoryMultipartStore) PutPart(_ context.Context, _, uploadID string, partNumber int, data io.Reader, _ int64) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	parts, ok := m.uploads[uploadID]
	if !ok {
		return "", &domain.StorageError{Kind: domain.StorageNotFound, Op: "put_part", Key: uploadID, Err: errors.New("NoSuchUpload")}
	}
	sum := md5.Sum(b)
	etag := hex.EncodeToString(sum[:])
	parts[partNumber] = etag
	return etag, nil
}

func (m *memoryMultipartStore) CompleteMultipartUpload(_ context.Context, key, uploadID string, parts []domain.PartTag) (domain.CompletedUpload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := md5.New()
	for _, p := range domain.SortedParts(parts) {
		raw, _ := hex.DecodeString(p.ETag)
		h.Write(raw)
	}
	res := domain.CompletedUpload{
		Bucket:   "videos",
		Key:      key,
		ETag:     fmt.Sprintf("%s-%d", hex.EncodeToString(h.Sum(nil)), len(parts)),
		Location: "http://storage.local/videos/" + key,
	}
	m.completed[key] = res
	delete(m.uploads, uploadID)
	return res, nil
}

func (m *memoryMultipartStore) AbortMultipartUpload(_ context.Context, _, uploadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, uploadID)
	return nil
}

type uploadFeature struct {
	ctx      context.Context
	store    *memoryMultipartStore
	uc       UploadUseCase
	fileName string
	uploadID string
	// 每個 part 依上傳順序記錄的 ETag
	history map[int][]string
	fill    byte
	result  domain.CompletedUpload
	err     error
}

func (f *uploadFeature) reset() {
	f.ctx = context.Background()
	f.store = newMemoryMultipartStore()
	f.uc = NewUploadUseCase(repository.NewMemoryUploadSessionRepo(), f.store)
	f.fileName, f.uploadID = "", ""
	f.history = make(map[int][]string)
	f.fill = 0
	f.result, f.err = domain.CompletedUpload{}, nil
}

func (f *uploadFeature) initiated(fileName string) error {
	id, err := f.uc.Initiate(f.ctx, fileName)
	if err != nil {
		return err
	}
	f.fileName, f.uploadID = fileName, id
	return nil
}

func (f *uploadFeature) initiateBlank() error {
	_, f.err = f.uc.Initiate(f.ctx, " ")
	return nil
}

func (f *uploadFeature) uploadPart(partNumber, size int) error {
	// 每次內容不同，重傳會得到新的 ETag
	f.fill++
	data := bytes.Repeat([]byte{f.fill}, size)
	etag, err := f.uc.UploadPart(f.ctx, UploadPartReq{
		UploadID:   f.uploadID,
		FileName:   f.fileName,
		PartNumber: partNumber,
		Data:       bytes.NewReader(data),
		Size:       int64(size),
	})
	if err != nil {
		f.err = err
		return nil
	}
	f.history[partNumber] = append(f.history[partNumber], etag)
	return nil
}

func (f *uploadFeature) abort() error {
	return f.uc.Abort(f.ctx, f.uploadID)
}

func (f *uploadFeature) partsFrom(pick func([]string) string) []domain.PartTag {
	numbers := make([]int, 0, len(f.history))
	for n := range f.history {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	parts := make([]domain.PartTag, 0, len(numbers))
	for _, n := range numbers {
		parts = append(parts, domain.PartTag{PartNumber: n, ETag: pick(f.history[n])})
	}
	return parts
}

func (f *uploadFeature) completeWithLatest() error {
	parts := f.partsFrom(func(h []string) string { return h[len(h)-1] })
	f.result, f.err = f.uc.Complete(f.ctx, f.uploadID, f.fileName, parts)
	return nil
}

func (f *uploadFeature) completeWithFirst() error {
	parts := f.partsFrom(func(h []string) string { return h[0] })
	f.result, f.err = f.uc.Complete(f.ctx, f.uploadID, f.fileName, parts)
	return nil
}

func (f *uploadFeature) succeeded(key string) error {
	if f.err != nil {
		return fmt.Errorf("expected success, got %w", f.err)
	}
	if f.result.Key != key {
		return fmt.Errorf("expected key %q, got %q", key, f.result.Key)
	}
	want := fmt.Sprintf("-%d", len(f.history))
	if len(f.result.ETag) <= len(want) || f.result.ETag[len(f.result.ETag)-len(want):] != want {
		return fmt.Errorf("unexpected final ETag %q", f.result.ETag)
	}
	return nil
}

func (f *uploadFeature) failedWith(kind string) error {
	if f.err == nil {
		return errors.New("expected an error, got none")
	}
	if !errors.Is(f.err, &domain.UploadError{Kind: domain.UploadErrorKind(kind)}) {
		return fmt.Errorf("expected %s, got %v", kind, f.err)
	}
	f.err = nil
	return nil
}

func (f *uploadFeature) nothingAssembled() error {
	if len(f.store.completed) != 0 {
		return fmt.Errorf("expected no assembled object, got %d", len(f.store.completed))
	}
	return nil
}

func InitializeUploadScenario(sc *godog.ScenarioContext) {
	f := &uploadFeature{}
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		f.reset()
		return ctx, nil
	})

	sc.Step(`^已建立檔案 "([^"]*)" 的上傳$`, f.initiated)
	sc.Step(`^以空白檔名建立上傳$`, f.initiateBlank)
	sc.Step(`^上傳第 (\d+) 個 part 大小 (\d+) bytes$`, f.uploadPart)
	sc.Step(`^取消上傳$`, f.abort)
	sc.Step(`^以最新的 ETag 完成上傳$`, f.completeWithLatest)
	sc.Step(`^以第一次上傳的 ETag 完成上傳$`, f.completeWithFirst)
	sc.Step(`^上傳成功並回傳 object "([^"]*)" 的 final ETag$`, f.succeeded)
	sc.Step(`^上傳失敗且錯誤為 "([^"]*)"$`, f.failedWith)
	sc.Step(`^storage 沒有組裝任何 object$`, f.nothingAssembled)
}

func TestUploadFeatures(t *testing.T) {
	logger.SetNewNop()
	suite := godog.TestSuite{
		Name:                "upload",
		ScenarioInitializer: InitializeUploadScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
