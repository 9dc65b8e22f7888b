package app

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/config"
	"video_ingest_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	storage  *fakeStorage
	encoder  *fakeEncoder
	metadata *MockMetadataClient
	observer *recordingObserver
	opts     PipelineOptions
	orch     *Orchestrator
}

func newPipelineFixture(t *testing.T, labels ...string) *pipelineFixture {
	t.Helper()
	logger.SetNewNop()
	if len(labels) == 0 {
		labels = []string{"360p", "720p"}
	}
	opts, err := NewPipelineOptions(config.PipelineConfig{
		Resolutions:        labels,
		SegmentDuration:    6,
		ThumbnailOffset:    time.Second,
		MaxParallelEncodes: len(labels),
		WorkDir:            t.TempDir(),
		ArchivePrefix:      "archived",
	})
	require.NoError(t, err)

	f := &pipelineFixture{
		storage:  newFakeStorage(),
		encoder:  &fakeEncoder{},
		metadata: new(MockMetadataClient),
		observer: &recordingObserver{},
		opts:     opts,
	}
	f.orch = NewOrchestrator(f.storage, f.encoder, f.metadata, f.observer, opts)
	return f
}

func (f *pipelineFixture) job(etag string) domain.TranscodeJob {
	return domain.TranscodeJob{
		JobID:       "job-1",
		SourceETag:  etag,
		Title:       "cat video",
		Description: "a cat",
		OwnerID:     "user-7",
		Status:      domain.JobRunning,
	}
}

func (f *pipelineFixture) expectCreate(etag string) {
	f.metadata.On("CreateVideo", mock.Anything, domain.CreateVideoReq{
		Title: "cat video", Description: "a cat", UserID: "user-7", ETag: etag,
	}).Return(domain.VideoAsset{ID: "42", Status: domain.AssetPending}, nil).Once()
}

func assertWorkDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files should be removed")
}

func TestPipelineSuccess(t *testing.T) {
	f := newPipelineFixture(t)
	etag := f.storage.seed("uploads/a.mp4", []byte("source-bytes"))
	f.expectCreate(etag)
	f.metadata.On("CompleteVideo", mock.Anything, domain.CompleteVideoReq{
		VideoID:      "42",
		VideoURL:     "http://storage.local/videos/uploads/a.mp4/master.m3u8",
		ThumbnailURL: "http://storage.local/videos/uploads/a.mp4/thumbnail.jpg",
		ArchivedURL:  "http://storage.local/videos/archived/uploads/a.mp4",
	}).Return(nil).Once()

	res, err := f.orch.Run(context.Background(), f.job(etag))
	require.NoError(t, err)
	assert.Equal(t, "42", res.VideoID)
	assert.Equal(t, "uploads/a.mp4", res.SourceKey)
	assert.Equal(t, []string{"360p", "720p"}, res.Renditions)

	for _, key := range []string{
		"uploads/a.mp4/thumbnail.jpg",
		"uploads/a.mp4/master.m3u8",
		"uploads/a.mp4/360p/playlist.m3u8",
		"uploads/a.mp4/360p/segment_000.ts",
		"uploads/a.mp4/360p/segment_001.ts",
		"uploads/a.mp4/720p/playlist.m3u8",
		"uploads/a.mp4/720p/segment_000.ts",
		"uploads/a.mp4/720p/segment_001.ts",
		"archived/uploads/a.mp4",
	} {
		assert.True(t, f.storage.has(key), "missing %s", key)
	}
	assert.False(t, f.storage.has("uploads/a.mp4"), "source should be moved to the archive")
	assert.Equal(t, "source-bytes", f.storage.content("archived/uploads/a.mp4"))
	assert.Equal(t, BuildMasterPlaylist(f.opts.Profiles, 6), f.storage.content("uploads/a.mp4/master.m3u8"))

	assert.Equal(t, []domain.PipelineState{
		domain.StateCreated,
		domain.StateSourceResolved,
		domain.StateThumbnailExtracted,
		domain.StateRenditionsEncoded,
		domain.StateSegmentsUploaded,
		domain.StateMasterPlaylistPublished,
		domain.StateArchived,
		domain.StateCompleted,
	}, f.observer.states())
	for _, tr := range f.observer.transitions {
		assert.Equal(t, "job-1", tr.JobID)
		assert.Equal(t, "42", tr.VideoID)
	}

	assertWorkDirEmpty(t, f.opts.WorkDir)
	f.metadata.AssertNotCalled(t, "DeleteVideo", mock.Anything, mock.Anything)
	f.metadata.AssertExpectations(t)
}

func TestPipelineEveryLabelGetsRenditionAndMasterEntry(t *testing.T) {
	labels := []string{"240p", "480p", "1080p"}
	f := newPipelineFixture(t, labels...)
	etag := f.storage.seed("clip.mov", []byte("mov"))
	f.expectCreate(etag)
	f.metadata.On("CompleteVideo", mock.Anything, mock.Anything).Return(nil)

	_, err := f.orch.Run(context.Background(), f.job(etag))
	require.NoError(t, err)

	master := f.storage.content("clip.mov/master.m3u8")
	for _, label := range labels {
		assert.True(t, f.storage.has("clip.mov/"+label+"/playlist.m3u8"))
		assert.Contains(t, master, label+"/playlist.m3u8")
	}
}

func TestPipelineEncodeFailureRollsBack(t *testing.T) {
	f := newPipelineFixture(t, "360p", "720p")
	f.encoder.failLabel = "720p"
	etag := f.storage.seed("uploads/b.mp4", []byte("b"))
	f.expectCreate(etag)
	f.metadata.On("DeleteVideo", mock.Anything, "42").Return(nil).Once()

	res, err := f.orch.Run(context.Background(), f.job(etag))
	require.Error(t, err)
	assert.Equal(t, "42", res.VideoID)

	var encErr *domain.EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "720p", encErr.Label)

	// 其他解析度被取消，且沒有任何 master playlist 或封存
	assert.Contains(t, f.encoder.cancelled, "360p")
	assert.Equal(t, []string{"uploads/b.mp4", "uploads/b.mp4/thumbnail.jpg"}, f.storage.keys())

	states := f.observer.states()
	assert.Equal(t, domain.StateFailed, states[len(states)-1])
	last := f.observer.transitions[len(f.observer.transitions)-1]
	assert.Equal(t, domain.StateThumbnailExtracted, last.From)
	assert.NotEmpty(t, last.Error)

	assertWorkDirEmpty(t, f.opts.WorkDir)
	f.metadata.AssertNotCalled(t, "CompleteVideo", mock.Anything, mock.Anything)
	f.metadata.AssertExpectations(t)
}

func TestPipelineSourceNotFound(t *testing.T) {
	f := newPipelineFixture(t)
	f.storage.seed("uploads/other.mp4", []byte("other"))
	// 封存區中的同內容檔案不算來源
	f.storage.seed("archived/uploads/c.mp4", []byte("c"))
	etag := etagOf([]byte("c"))
	f.expectCreate(etag)
	f.metadata.On("DeleteVideo", mock.Anything, "42").Return(nil).Once()

	_, err := f.orch.Run(context.Background(), f.job(etag))
	assert.True(t, errors.Is(err, &domain.JobError{Kind: domain.JobSourceNotFound}))
	assert.Equal(t, []domain.PipelineState{domain.StateCreated, domain.StateFailed}, f.observer.states())
	f.metadata.AssertExpectations(t)
}

func TestPipelineCompletionNoticeFailureRollsBack(t *testing.T) {
	f := newPipelineFixture(t)
	etag := f.storage.seed("uploads/d.mp4", []byte("d"))
	f.expectCreate(etag)
	notice := &domain.MetadataError{Op: "complete_video", StatusCode: 502, Err: errors.New("bad gateway")}
	f.metadata.On("CompleteVideo", mock.Anything, mock.Anything).Return(notice).Once()
	f.metadata.On("DeleteVideo", mock.Anything, "42").Return(nil).Once()

	_, err := f.orch.Run(context.Background(), f.job(etag))
	var metaErr *domain.MetadataError
	require.ErrorAs(t, err, &metaErr)
	assert.Equal(t, 502, metaErr.StatusCode)

	states := f.observer.states()
	assert.Equal(t, domain.StateFailed, states[len(states)-1])
	f.metadata.AssertExpectations(t)
}

func TestPipelineCreateVideoFailureSkipsRollback(t *testing.T) {
	f := newPipelineFixture(t)
	etag := f.storage.seed("uploads/e.mp4", []byte("e"))
	f.metadata.On("CreateVideo", mock.Anything, mock.Anything).
		Return(domain.VideoAsset{}, &domain.MetadataError{Op: "create_video", StatusCode: 500, Err: errors.New("boom")}).Once()

	_, err := f.orch.Run(context.Background(), f.job(etag))
	require.Error(t, err)
	assert.Equal(t, []domain.PipelineState{domain.StateFailed}, f.observer.states())
	f.metadata.AssertNotCalled(t, "DeleteVideo", mock.Anything, mock.Anything)
}

func TestPipelineRollbackFailureKeepsOriginalError(t *testing.T) {
	f := newPipelineFixture(t)
	f.encoder.failLabel = "360p"
	etag := f.storage.seed("uploads/g.mp4", []byte("g"))
	f.expectCreate(etag)
	f.metadata.On("DeleteVideo", mock.Anything, "42").Return(errors.New("metadata down")).Once()

	_, err := f.orch.Run(context.Background(), f.job(etag))
	var encErr *domain.EncodeError
	require.ErrorAs(t, err, &encErr)
	f.metadata.AssertExpectations(t)
}

func TestPipelineRollbackRunsAfterCancel(t *testing.T) {
	f := newPipelineFixture(t, "360p")
	etag := f.storage.seed("uploads/h.mp4", []byte("h"))
	f.expectCreate(etag)
	// 補償刪除使用獨立的 ctx，不受已取消的 job ctx 影響
	f.metadata.On("DeleteVideo", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), "42").Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.orch.Run(ctx, f.job(etag))
	assert.True(t, IsCancellation(err))
	f.metadata.AssertExpectations(t)
}

func TestNewPipelineOptions(t *testing.T) {
	_, err := NewPipelineOptions(config.PipelineConfig{Resolutions: []string{"360p", "4k"}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = NewPipelineOptions(config.PipelineConfig{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	opts, err := NewPipelineOptions(config.PipelineConfig{Resolutions: []string{"480p", "240p"}, ArchivePrefix: "/cold/"})
	require.NoError(t, err)
	assert.Equal(t, "480p", opts.Profiles[0].Label)
	assert.Equal(t, 6, opts.SegmentDuration)
	assert.Equal(t, time.Second, opts.ThumbnailOffset)
	assert.Equal(t, 2, opts.MaxParallelEncodes)
	assert.Equal(t, "cold", opts.ArchivePrefix)
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "uploads_a.mp4", sanitizeKey("uploads/a.mp4"))
	assert.Equal(t, "__x", sanitizeKey("../x"))
	assert.Equal(t, "source", sanitizeKey(""))
}
