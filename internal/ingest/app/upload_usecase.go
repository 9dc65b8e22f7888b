package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/repository"
	errprocess "video_ingest_service/pkg/err"
	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
)

// UploadPartReq 單一 chunk 上傳請求
type UploadPartReq struct {
	UploadID    string
	FileName    string
	PartNumber  int
	TotalChunks int
	Data        io.Reader
	Size        int64
}

// UploadUseCase multipart upload coordinator
type UploadUseCase interface {
	Initiate(ctx context.Context, fileName string) (string, error)
	UploadPart(ctx context.Context, req UploadPartReq) (string, error)
	Complete(ctx context.Context, uploadID, fileName string, parts []domain.PartTag) (domain.CompletedUpload, error)
	Abort(ctx context.Context, uploadID string) error
}

type uploadUseCase struct {
	sessions repository.UploadSessionRepo
	store    repository.MultipartStore
}

// NewUploadUseCase create UploadUseCase
func NewUploadUseCase(sessions repository.UploadSessionRepo, store repository.MultipartStore) UploadUseCase {
	return &uploadUseCase{sessions: sessions, store: store}
}

// Initiate 建立 provider multipart upload 與 session；fileName 即最終 object key
func (u *uploadUseCase) Initiate(ctx context.Context, fileName string) (string, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return "", &domain.UploadError{Kind: domain.UploadMissingField, Msg: "fileName is required"}
	}

	uploadID, err := u.store.NewMultipartUpload(ctx, fileName)
	if err != nil {
		return "", errprocess.Wrap(err, fmt.Sprintf("fileName[%s] 建立 multipart upload 失敗", fileName))
	}

	session := domain.UploadSession{
		UploadID:  uploadID,
		FileName:  fileName,
		Status:    domain.UploadInitiated,
		CreatedAt: time.Now().UTC(),
	}
	if err := u.sessions.Create(ctx, session); err != nil {
		// session 存不進去就把 provider 端的 upload 一起取消
		if abortErr := u.store.AbortMultipartUpload(ctx, fileName, uploadID); abortErr != nil {
			logger.Log.Warn("取消 multipart upload 失敗", zap.String("upload_id", uploadID), zap.Error(abortErr))
		}
		return "", errprocess.Wrap(err, fmt.Sprintf("fileName[%s] 儲存 upload session 失敗", fileName))
	}

	logger.Log.Info("multipart upload initiated", zap.String("upload_id", uploadID), zap.String("file_name", fileName))
	return uploadID, nil
}

// UploadPart 上傳單一 part；同一 partNumber 重傳會覆蓋先前的 ETag
func (u *uploadUseCase) UploadPart(ctx context.Context, req UploadPartReq) (string, error) {
	if req.UploadID == "" {
		return "", &domain.UploadError{Kind: domain.UploadMissingField, Msg: "uploadId is required"}
	}
	if req.PartNumber < 1 {
		return "", &domain.UploadError{Kind: domain.UploadMissingField, UploadID: req.UploadID,
			Msg: fmt.Sprintf("part number must be >= 1, got %d", req.PartNumber)}
	}
	if req.Data == nil {
		return "", &domain.UploadError{Kind: domain.UploadMissingField, UploadID: req.UploadID, Msg: "chunk is required"}
	}

	session, err := u.sessions.Get(ctx, req.UploadID)
	if err != nil {
		return "", err
	}
	if req.FileName != "" && req.FileName != session.FileName {
		return "", &domain.UploadError{Kind: domain.UploadPartMismatch, UploadID: req.UploadID,
			Msg: fmt.Sprintf("fileName %q does not match session %q", req.FileName, session.FileName)}
	}
	if session.TotalChunks > 0 && req.PartNumber > session.TotalChunks {
		return "", &domain.UploadError{Kind: domain.UploadPartMismatch, UploadID: req.UploadID,
			Msg: fmt.Sprintf("part %d exceeds totalChunks %d", req.PartNumber, session.TotalChunks)}
	}

	etag, err := u.store.PutPart(ctx, session.FileName, req.UploadID, req.PartNumber, req.Data, req.Size)
	if err != nil {
		return "", errprocess.Wrap(err, fmt.Sprintf("uploadId[%s] part[%d] 上傳失敗", req.UploadID, req.PartNumber))
	}
	if err := u.sessions.PutPart(ctx, req.UploadID, req.PartNumber, etag); err != nil {
		return "", errprocess.Wrap(err, fmt.Sprintf("uploadId[%s] part[%d] 記錄 ETag 失敗", req.UploadID, req.PartNumber))
	}

	if session.Status == domain.UploadInitiated || (session.TotalChunks == 0 && req.TotalChunks > 0) {
		// 多個第一批 part 可能同時到達，交給 repo 做 set-if-unset
		if _, err := u.sessions.MarkUploading(ctx, req.UploadID, req.TotalChunks); err != nil {
			return "", errprocess.Wrap(err, fmt.Sprintf("uploadId[%s] 更新 session 失敗", req.UploadID))
		}
	}

	logger.Log.Debug("part uploaded",
		zap.String("upload_id", req.UploadID),
		zap.Int("part_number", req.PartNumber),
		zap.String("etag", etag),
	)
	return etag, nil
}

// Complete parts 必須是完整的 1..N，且每個 ETag 與最後一次上傳的相同
func (u *uploadUseCase) Complete(ctx context.Context, uploadID, fileName string, parts []domain.PartTag) (domain.CompletedUpload, error) {
	if uploadID == "" {
		return domain.CompletedUpload{}, &domain.UploadError{Kind: domain.UploadMissingField, Msg: "uploadId is required"}
	}

	session, err := u.sessions.Get(ctx, uploadID)
	if err != nil {
		return domain.CompletedUpload{}, err
	}
	if fileName != "" && fileName != session.FileName {
		return domain.CompletedUpload{}, &domain.UploadError{Kind: domain.UploadPartMismatch, UploadID: uploadID,
			Msg: fmt.Sprintf("fileName %q does not match session %q", fileName, session.FileName)}
	}
	if err := domain.ValidateParts(uploadID, parts, session.TotalChunks); err != nil {
		return domain.CompletedUpload{}, err
	}

	stored, err := u.sessions.Parts(ctx, uploadID)
	if err != nil {
		return domain.CompletedUpload{}, errprocess.Wrap(err, fmt.Sprintf("uploadId[%s] 讀取 parts 失敗", uploadID))
	}
	for _, p := range parts {
		etag, ok := stored[p.PartNumber]
		if !ok {
			return domain.CompletedUpload{}, &domain.UploadError{Kind: domain.UploadIncomplete, UploadID: uploadID,
				Msg: fmt.Sprintf("part %d was never uploaded", p.PartNumber)}
		}
		if repository.NormalizeETag(etag) != repository.NormalizeETag(p.ETag) {
			return domain.CompletedUpload{}, &domain.UploadError{Kind: domain.UploadPartMismatch, UploadID: uploadID,
				Msg: fmt.Sprintf("part %d ETag %q is stale, latest is %q", p.PartNumber, p.ETag, etag)}
		}
	}

	result, err := u.store.CompleteMultipartUpload(ctx, session.FileName, uploadID, parts)
	if err != nil {
		return domain.CompletedUpload{}, errprocess.Wrap(err, fmt.Sprintf("uploadId[%s] 組裝 object 失敗", uploadID))
	}

	if err := u.sessions.Delete(ctx, uploadID); err != nil {
		logger.Log.Warn("刪除 upload session 失敗", zap.String("upload_id", uploadID), zap.Error(err))
	}

	logger.Log.Info("multipart upload completed",
		zap.String("upload_id", uploadID),
		zap.String("key", result.Key),
		zap.String("etag", result.ETag),
		zap.Int("parts", len(parts)),
	)
	return result, nil
}

// Abort 取消 provider 端 upload 並刪除 session
func (u *uploadUseCase) Abort(ctx context.Context, uploadID string) error {
	session, err := u.sessions.Get(ctx, uploadID)
	if err != nil {
		return err
	}
	if err := u.store.AbortMultipartUpload(ctx, session.FileName, uploadID); err != nil {
		return errprocess.Wrap(err, fmt.Sprintf("uploadId[%s] 取消 multipart upload 失敗", uploadID))
	}
	if err := u.sessions.Delete(ctx, uploadID); err != nil {
		return errprocess.Wrap(err, fmt.Sprintf("uploadId[%s] 刪除 session 失敗", uploadID))
	}
	logger.Log.Info("multipart upload aborted", zap.String("upload_id", uploadID), zap.String("status", string(domain.UploadAborted)))
	return nil
}
