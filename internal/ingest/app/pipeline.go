package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/repository"
	"video_ingest_service/pkg/config"
	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	thumbnailName = "thumbnail.jpg"
	masterName    = "master.m3u8"

	rollbackTimeout = 30 * time.Second
)

// PipelineOptions 建構後不再修改
type PipelineOptions struct {
	Profiles           []domain.RenditionProfile
	SegmentDuration    int
	ThumbnailOffset    time.Duration
	MaxParallelEncodes int
	WorkDir            string
	ArchivePrefix      string
}

// NewPipelineOptions 由設定檔解析解析度 label，未知 label 直接回傳錯誤
func NewPipelineOptions(cfg config.PipelineConfig) (PipelineOptions, error) {
	if len(cfg.Resolutions) == 0 {
		return PipelineOptions{}, fmt.Errorf("%w: no resolutions configured", domain.ErrInvalidArgument)
	}
	profiles, err := domain.DefaultDimensionTable.Profiles(cfg.Resolutions)
	if err != nil {
		return PipelineOptions{}, err
	}
	opts := PipelineOptions{
		Profiles:           profiles,
		SegmentDuration:    cfg.SegmentDuration,
		ThumbnailOffset:    cfg.ThumbnailOffset,
		MaxParallelEncodes: cfg.MaxParallelEncodes,
		WorkDir:            cfg.WorkDir,
		ArchivePrefix:      strings.Trim(cfg.ArchivePrefix, "/"),
	}
	if opts.SegmentDuration <= 0 {
		opts.SegmentDuration = 6
	}
	if opts.ThumbnailOffset <= 0 {
		opts.ThumbnailOffset = time.Second
	}
	if opts.MaxParallelEncodes <= 0 {
		opts.MaxParallelEncodes = len(profiles)
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.ArchivePrefix == "" {
		opts.ArchivePrefix = "archived"
	}
	return opts, nil
}

// Orchestrator 將一個原始影片轉成多解析度 HLS，失敗時刪除已建立的 VideoAsset
type Orchestrator struct {
	storage  repository.StorageGateway
	encoder  RenditionEncoder
	metadata repository.MetadataClient
	observer TransitionObserver
	opts     PipelineOptions
	now      func() time.Time
}

// NewOrchestrator create Orchestrator
func NewOrchestrator(storage repository.StorageGateway, encoder RenditionEncoder, metadata repository.MetadataClient,
	observer TransitionObserver, opts PipelineOptions) *Orchestrator {
	if observer == nil {
		observer = LogObserver
	}
	return &Orchestrator{
		storage:  storage,
		encoder:  encoder,
		metadata: metadata,
		observer: observer,
		opts:     opts,
		now:      time.Now,
	}
}

// pipelineRun 單一 job 執行期間的狀態
type pipelineRun struct {
	job       domain.TranscodeJob
	state     domain.PipelineState
	videoID   string
	sourceKey string
	workDir   string
}

// Run 依序執行各階段；回傳的 result 在失敗時仍帶有已知的 VideoID
func (o *Orchestrator) Run(ctx context.Context, job domain.TranscodeJob) (domain.PipelineResult, error) {
	run := &pipelineRun{job: job}

	result, err := o.execute(ctx, run)
	if run.workDir != "" {
		o.cleanup(run.workDir)
	}
	if err != nil {
		o.fail(ctx, run, err)
		return domain.PipelineResult{VideoID: run.videoID, SourceKey: run.sourceKey}, err
	}
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, run *pipelineRun) (domain.PipelineResult, error) {
	job := run.job

	// 1. 建立 pending VideoAsset，之後的失敗都需要補償刪除
	asset, err := o.metadata.CreateVideo(ctx, domain.CreateVideoReq{
		Title:       job.Title,
		Description: job.Description,
		UserID:      job.OwnerID,
		ETag:        job.SourceETag,
	})
	if err != nil {
		return domain.PipelineResult{}, err
	}
	run.videoID = asset.ID
	o.advance(ctx, run, domain.StateCreated)

	// 2. 以 ETag 找出原始檔
	sourceKey, err := o.resolveSource(ctx, job)
	if err != nil {
		return domain.PipelineResult{}, err
	}
	run.sourceKey = sourceKey
	o.advance(ctx, run, domain.StateSourceResolved)

	run.workDir = filepath.Join(o.opts.WorkDir, fmt.Sprintf("%s-%s", sanitizeKey(sourceKey), job.JobID))
	if err := createDir(run.workDir); err != nil {
		return domain.PipelineResult{}, fmt.Errorf("建立工作目錄失敗: %w", err)
	}
	localSource := filepath.Join(run.workDir, path.Base(sourceKey))
	if err := o.download(ctx, sourceKey, localSource); err != nil {
		return domain.PipelineResult{}, err
	}

	// 3. 縮圖
	thumbnailKey := path.Join(sourceKey, thumbnailName)
	localThumb := filepath.Join(run.workDir, thumbnailName)
	if err := o.encoder.Thumbnail(ctx, localSource, localThumb, o.opts.ThumbnailOffset); err != nil {
		return domain.PipelineResult{}, err
	}
	if _, err := o.storage.Put(ctx, localThumb, thumbnailKey); err != nil {
		return domain.PipelineResult{}, err
	}
	o.advance(ctx, run, domain.StateThumbnailExtracted)

	// 4. 各解析度同時轉檔，任一失敗即取消其他
	renditions, err := o.encodeAll(ctx, localSource)
	if err != nil {
		return domain.PipelineResult{}, err
	}
	o.advance(ctx, run, domain.StateRenditionsEncoded)

	// 5. 切片並上傳
	if err := o.segmentAll(ctx, run, renditions); err != nil {
		return domain.PipelineResult{}, err
	}
	o.advance(ctx, run, domain.StateSegmentsUploaded)

	// 6. master playlist
	masterKey := path.Join(sourceKey, masterName)
	localMaster := filepath.Join(run.workDir, masterName)
	playlist := BuildMasterPlaylist(o.opts.Profiles, o.opts.SegmentDuration)
	if err := os.WriteFile(localMaster, []byte(playlist), 0644); err != nil {
		return domain.PipelineResult{}, fmt.Errorf("寫入 master playlist 失敗: %w", err)
	}
	if _, err := o.storage.Put(ctx, localMaster, masterKey); err != nil {
		return domain.PipelineResult{}, err
	}
	o.advance(ctx, run, domain.StateMasterPlaylistPublished)

	// 7. 原始檔搬到封存區
	archivedKey := path.Join(o.opts.ArchivePrefix, sourceKey)
	if err := o.storage.Copy(ctx, sourceKey, archivedKey); err != nil {
		return domain.PipelineResult{}, err
	}
	if err := o.storage.Delete(ctx, sourceKey); err != nil {
		return domain.PipelineResult{}, err
	}
	o.advance(ctx, run, domain.StateArchived)

	// 8. 通知 metadata service
	result := domain.PipelineResult{
		VideoID:      run.videoID,
		SourceKey:    sourceKey,
		VideoURL:     o.storage.ObjectURL(masterKey),
		ThumbnailURL: o.storage.ObjectURL(thumbnailKey),
		ArchivedURL:  o.storage.ObjectURL(archivedKey),
	}
	for _, r := range renditions {
		result.Renditions = append(result.Renditions, r.Profile.Label)
	}
	if err := o.metadata.CompleteVideo(ctx, domain.CompleteVideoReq{
		VideoID:      result.VideoID,
		VideoURL:     result.VideoURL,
		ThumbnailURL: result.ThumbnailURL,
		ArchivedURL:  result.ArchivedURL,
	}); err != nil {
		return domain.PipelineResult{}, err
	}
	o.advance(ctx, run, domain.StateCompleted)

	return result, nil
}

// resolveSource 掃描 bucket 找 ETag 相符的 object，封存區內的不算
func (o *Orchestrator) resolveSource(ctx context.Context, job domain.TranscodeJob) (string, error) {
	objects, err := o.storage.List(ctx, "")
	if err != nil {
		return "", err
	}
	want := repository.NormalizeETag(job.SourceETag)
	archived := o.opts.ArchivePrefix + "/"
	for _, obj := range objects {
		if strings.HasPrefix(obj.Key, archived) {
			continue
		}
		if repository.NormalizeETag(obj.ETag) == want {
			return obj.Key, nil
		}
	}
	return "", &domain.JobError{Kind: domain.JobSourceNotFound, JobID: job.JobID,
		Msg: fmt.Sprintf("no object with ETag %s", job.SourceETag)}
}

func (o *Orchestrator) download(ctx context.Context, key, localPath string) error {
	rc, err := o.storage.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("建立本地原始檔失敗: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("下載原始影片失敗: %w", err)
	}
	return nil
}

func (o *Orchestrator) encodeAll(ctx context.Context, localSource string) ([]domain.Rendition, error) {
	renditions := make([]domain.Rendition, len(o.opts.Profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxParallelEncodes)
	for i, profile := range o.opts.Profiles {
		g.Go(func() error {
			out, err := o.encoder.Downscale(gctx, localSource, profile)
			if err != nil {
				return err
			}
			renditions[i] = domain.Rendition{Profile: profile, EncodedPath: out}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return renditions, nil
}

func (o *Orchestrator) segmentAll(ctx context.Context, run *pipelineRun, renditions []domain.Rendition) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxParallelEncodes)
	for i := range renditions {
		g.Go(func() error {
			label := renditions[i].Profile.Label
			outDir := filepath.Join(run.workDir, label)
			segments, playlist, err := o.encoder.Segment(gctx, renditions[i].EncodedPath, outDir, o.opts.SegmentDuration)
			if err != nil {
				return err
			}
			prefix := path.Join(run.sourceKey, label)
			for _, seg := range segments {
				if _, err := o.storage.Put(gctx, seg, path.Join(prefix, filepath.Base(seg))); err != nil {
					return err
				}
			}
			if _, err := o.storage.Put(gctx, playlist, path.Join(prefix, playlistName)); err != nil {
				return err
			}

			renditions[i].SegmentPaths = segments
			renditions[i].PlaylistPath = playlist
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) advance(ctx context.Context, run *pipelineRun, to domain.PipelineState) {
	t := domain.Transition{
		JobID:   run.job.JobID,
		VideoID: run.videoID,
		From:    run.state,
		To:      to,
		At:      o.now().UTC(),
	}
	run.state = to
	o.observer.OnTransition(ctx, t)
}

// fail 轉為 Failed 並補償刪除 VideoAsset；刪除失敗只記錄
func (o *Orchestrator) fail(ctx context.Context, run *pipelineRun, cause error) {
	t := domain.Transition{
		JobID:   run.job.JobID,
		VideoID: run.videoID,
		From:    run.state,
		To:      domain.StateFailed,
		Error:   cause.Error(),
		At:      o.now().UTC(),
	}
	run.state = domain.StateFailed
	o.observer.OnTransition(ctx, t)

	if run.videoID == "" {
		return
	}
	// job ctx 可能已逾時，補償動作另給時限
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := o.metadata.DeleteVideo(rctx, run.videoID); err != nil {
		logger.Log.Error("刪除 VideoAsset 失敗",
			zap.String("job_id", run.job.JobID),
			zap.String("video_id", run.videoID),
			zap.Error(err),
		)
		return
	}
	logger.Log.Info("已刪除失敗 job 的 VideoAsset", zap.String("job_id", run.job.JobID), zap.String("video_id", run.videoID))
}

func (o *Orchestrator) cleanup(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logger.Log.Warn("清理本地暫存目錄失敗", zap.String("dir", dir), zap.Error(err))
	}
}

// sanitizeKey object key 轉成可當目錄名稱的字串
func sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	s := r.Replace(key)
	if s == "" {
		return "source"
	}
	return s
}

// IsCancellation job 是否因 ctx 取消或逾時而失敗
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
