package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument 呼叫參數不合法
var ErrInvalidArgument = errors.New("invalid argument")

// UploadErrorKind upload error category
type UploadErrorKind string

const (
	// UploadMissingField 缺少必要欄位
	UploadMissingField UploadErrorKind = "MissingField"
	// UploadPartMismatch part 的 ETag 或檔名與 session 不符
	UploadPartMismatch UploadErrorKind = "PartMismatch"
	// UploadIncomplete part 編號不是完整的 1..N
	UploadIncomplete UploadErrorKind = "IncompleteUpload"
	// UploadSessionNotFound uploadId 不存在或已結束
	UploadSessionNotFound UploadErrorKind = "SessionNotFound"
)

// UploadError multipart upload error
type UploadError struct {
	Kind     UploadErrorKind
	UploadID string
	Msg      string
}

func (e *UploadError) Error() string {
	if e.UploadID == "" {
		return fmt.Sprintf("upload %s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("upload[%s] %s: %s", e.UploadID, e.Kind, e.Msg)
}

// Is 同 Kind 視為相同；MissingField 同時是 ErrInvalidArgument
func (e *UploadError) Is(target error) bool {
	if target == ErrInvalidArgument {
		return e.Kind == UploadMissingField
	}
	t, ok := target.(*UploadError)
	return ok && t.Kind == e.Kind
}

// StorageErrorKind storage error category
type StorageErrorKind string

const (
	// StorageNotFound object 或 upload 不存在
	StorageNotFound StorageErrorKind = "NotFound"
	// StoragePermissionDenied 權限不足
	StoragePermissionDenied StorageErrorKind = "PermissionDenied"
	// StorageRetryable 暫時性錯誤 (網路、5xx、throttling)
	StorageRetryable StorageErrorKind = "Retryable"
	// StorageUnknown 其他錯誤
	StorageUnknown StorageErrorKind = "Unknown"
)

// StorageError object storage error; gateway 本身不重試，由呼叫端依 Retryable 決定
type StorageError struct {
	Kind      StorageErrorKind
	Op        string
	Key       string
	Retryable bool
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q (%s): %v", e.Op, e.Key, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is 同 Kind 視為相同
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	return ok && t.Kind == e.Kind
}

// EncodeError 外部轉碼工具失敗 (ToolFailure)
type EncodeError struct {
	Stage  string
	Label  string
	Stderr string
	Err    error
}

func (e *EncodeError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("encode %s failed: %v: %s", e.Stage, e.Err, e.Stderr)
	}
	return fmt.Sprintf("encode %s[%s] failed: %v: %s", e.Stage, e.Label, e.Err, e.Stderr)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// JobErrorKind job error category
type JobErrorKind string

const (
	// JobMalformedMessage 佇列訊息無法解析
	JobMalformedMessage JobErrorKind = "MalformedMessage"
	// JobSourceNotFound storage 找不到 ETag 相符的原始檔
	JobSourceNotFound JobErrorKind = "SourceNotFound"
	// JobInvalidTransition 狀態不可回退
	JobInvalidTransition JobErrorKind = "InvalidTransition"
	// JobDuplicate 同一 sourceETag 已在處理中
	JobDuplicate JobErrorKind = "Duplicate"
	// JobNotFound job 記錄不存在
	JobNotFound JobErrorKind = "NotFound"
)

// JobError transcode job error
type JobError struct {
	Kind  JobErrorKind
	JobID string
	Msg   string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job[%s] %s: %s", e.JobID, e.Kind, e.Msg)
}

// Is 同 Kind 視為相同
func (e *JobError) Is(target error) bool {
	t, ok := target.(*JobError)
	return ok && t.Kind == e.Kind
}

// MetadataError video metadata service callback failed (CallbackFailed)
type MetadataError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata callback %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// NotFound 對方回應 404
func (e *MetadataError) NotFound() bool {
	return e.StatusCode == 404
}
