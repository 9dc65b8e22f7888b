package domain

import (
	"fmt"
	"sort"
	"time"
)

// UploadStatus multipart upload session status
type UploadStatus string

const (
	// UploadInitiated session 已建立，尚未收到 part
	UploadInitiated UploadStatus = "Initiated"
	// UploadUploading 已收到至少一個 part
	UploadUploading UploadStatus = "Uploading"
	// UploadCompleted 已完成組裝
	UploadCompleted UploadStatus = "Completed"
	// UploadAborted 已取消
	UploadAborted UploadStatus = "Aborted"
)

// UploadSession 一次 multipart upload 的狀態；parts 另存 (partNumber -> ETag)
type UploadSession struct {
	UploadID    string       `json:"upload_id"`
	FileName    string       `json:"file_name"`
	TotalChunks int          `json:"total_chunks,omitempty"`
	Status      UploadStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// PartTag client 在 complete 時送回的 part
type PartTag struct {
	PartNumber int    `json:"PartNumber"`
	ETag       string `json:"ETag"`
}

// CompletedUpload 組裝完成後的 object 資訊
type CompletedUpload struct {
	Bucket   string `json:"Bucket"`
	Key      string `json:"Key"`
	ETag     string `json:"ETag"`
	Location string `json:"Location"`
}

// SortedParts 依 PartNumber 排序後回傳新 slice
func SortedParts(parts []PartTag) []PartTag {
	out := make([]PartTag, len(parts))
	copy(out, parts)
	sort.Slice(out, func(i, j int) bool { return out[i].PartNumber < out[j].PartNumber })
	return out
}

// ValidateParts 檢查 parts 為不重複且無缺口的 1..N；expected > 0 時 N 必須等於 expected
func ValidateParts(uploadID string, parts []PartTag, expected int) error {
	if len(parts) == 0 {
		return &UploadError{Kind: UploadIncomplete, UploadID: uploadID, Msg: "no parts supplied"}
	}
	sorted := SortedParts(parts)
	// 排序後最小的在最前面
	if n := sorted[0].PartNumber; n < 1 {
		return &UploadError{Kind: UploadIncomplete, UploadID: uploadID,
			Msg: fmt.Sprintf("invalid part number %d", n)}
	}
	for i, p := range sorted {
		want := i + 1
		if p.PartNumber != want {
			if p.PartNumber < want {
				return &UploadError{Kind: UploadIncomplete, UploadID: uploadID,
					Msg: fmt.Sprintf("duplicate part %d", p.PartNumber)}
			}
			return &UploadError{Kind: UploadIncomplete, UploadID: uploadID,
				Msg: fmt.Sprintf("missing part %d", want)}
		}
		if p.ETag == "" {
			return &UploadError{Kind: UploadMissingField, UploadID: uploadID,
				Msg: fmt.Sprintf("part %d has empty ETag", p.PartNumber)}
		}
	}
	if expected > 0 && len(sorted) != expected {
		return &UploadError{Kind: UploadIncomplete, UploadID: uploadID,
			Msg: fmt.Sprintf("expected %d parts, got %d", expected, len(sorted))}
	}
	return nil
}
