package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/database"

	"github.com/minio/minio-go/v7"
)

// ObjectInfo storage 上的物件摘要
type ObjectInfo struct {
	Key          string
	ETag         string
	Size         int64
	LastModified time.Time
}

// UploadResult put 後的結果
type UploadResult struct {
	Key  string
	ETag string
	Size int64
}

// StorageGateway object storage 抽象；所有錯誤皆為 *domain.StorageError，gateway 不做重試
type StorageGateway interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, localPath, key string) (UploadResult, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	ObjectURL(key string) string
}

// MultipartStore provider multipart upload
type MultipartStore interface {
	NewMultipartUpload(ctx context.Context, key string) (string, error)
	PutPart(ctx context.Context, key, uploadID string, partNumber int, data io.Reader, size int64) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []domain.PartTag) (domain.CompletedUpload, error)
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
}

// MinIOGateway 以 MinIO 實作 StorageGateway 與 MultipartStore
type MinIOGateway struct {
	client        *database.MinIOClient
	publicBaseURL string
}

// NewMinIOGateway create MinIOGateway
// publicBaseURL 空白時由 endpoint + bucket 組出物件 URL
func NewMinIOGateway(client *database.MinIOClient, publicBaseURL string) *MinIOGateway {
	return &MinIOGateway{client: client, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (g *MinIOGateway) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := g.client.Client.GetObject(ctx, g.client.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, storageError("get", key, err)
	}
	// GetObject 是 lazy 的，先 Stat 讓 NoSuchKey 在這裡就回報
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, storageError("get", key, err)
	}
	return obj, nil
}

func (g *MinIOGateway) Put(ctx context.Context, localPath, key string) (UploadResult, error) {
	info, err := g.client.Client.FPutObject(ctx, g.client.BucketName, key, localPath, minio.PutObjectOptions{
		ContentType: ContentType(key),
	})
	if err != nil {
		return UploadResult{}, storageError("put", key, err)
	}
	return UploadResult{Key: info.Key, ETag: info.ETag, Size: info.Size}, nil
}

func (g *MinIOGateway) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := g.client.Client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: g.client.BucketName, Object: dstKey},
		minio.CopySrcOptions{Bucket: g.client.BucketName, Object: srcKey},
	)
	if err != nil {
		return storageError("copy", srcKey, err)
	}
	return nil
}

func (g *MinIOGateway) Delete(ctx context.Context, key string) error {
	if err := g.client.Client.RemoveObject(ctx, g.client.BucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return storageError("delete", key, err)
	}
	return nil
}

func (g *MinIOGateway) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for obj := range g.client.Client.ListObjects(ctx, g.client.BucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, storageError("list", prefix, obj.Err)
		}
		out = append(out, ObjectInfo{
			Key:          obj.Key,
			ETag:         NormalizeETag(obj.ETag),
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return out, nil
}

func (g *MinIOGateway) ObjectURL(key string) string {
	if g.publicBaseURL != "" {
		return g.publicBaseURL + "/" + key
	}
	scheme := "http"
	if g.client.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, g.client.Endpoint, g.client.BucketName, key)
}

func (g *MinIOGateway) NewMultipartUpload(ctx context.Context, key string) (string, error) {
	uploadID, err := g.client.Core.NewMultipartUpload(ctx, g.client.BucketName, key, minio.PutObjectOptions{
		ContentType: ContentType(key),
	})
	if err != nil {
		return "", storageError("initiate", key, err)
	}
	return uploadID, nil
}

func (g *MinIOGateway) PutPart(ctx context.Context, key, uploadID string, partNumber int, data io.Reader, size int64) (string, error) {
	part, err := g.client.Core.PutObjectPart(ctx, g.client.BucketName, key, uploadID, partNumber, data, size, minio.PutObjectPartOptions{})
	if err != nil {
		return "", storageError("put_part", key, err)
	}
	return NormalizeETag(part.ETag), nil
}

func (g *MinIOGateway) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []domain.PartTag) (domain.CompletedUpload, error) {
	completeParts := make([]minio.CompletePart, 0, len(parts))
	for _, p := range domain.SortedParts(parts) {
		completeParts = append(completeParts, minio.CompletePart{PartNumber: p.PartNumber, ETag: p.ETag})
	}
	info, err := g.client.Core.CompleteMultipartUpload(ctx, g.client.BucketName, key, uploadID, completeParts, minio.PutObjectOptions{})
	if err != nil {
		return domain.CompletedUpload{}, storageError("complete", key, err)
	}
	return domain.CompletedUpload{
		Bucket:   g.client.BucketName,
		Key:      key,
		ETag:     NormalizeETag(info.ETag),
		Location: g.ObjectURL(key),
	}, nil
}

func (g *MinIOGateway) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	if err := g.client.Core.AbortMultipartUpload(ctx, g.client.BucketName, key, uploadID); err != nil {
		return storageError("abort", key, err)
	}
	return nil
}

// storageError 將 minio 錯誤分類成 StorageError
func storageError(op, key string, err error) error {
	se := &domain.StorageError{Op: op, Key: key, Kind: domain.StorageUnknown, Err: err}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		se.Kind = domain.StorageRetryable
		se.Retryable = true
		return se
	}

	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.Code == "NoSuchUpload" ||
		resp.StatusCode == http.StatusNotFound:
		se.Kind = domain.StorageNotFound
	case resp.Code == "AccessDenied" || resp.StatusCode == http.StatusForbidden:
		se.Kind = domain.StoragePermissionDenied
	case resp.Code == "SlowDown" || resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode >= http.StatusInternalServerError:
		se.Kind = domain.StorageRetryable
		se.Retryable = true
	}
	return se
}

// NormalizeETag 去掉 ETag 前後的引號
func NormalizeETag(etag string) string {
	return strings.Trim(etag, "\"")
}

// ContentType 依副檔名回傳 Content-Type
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/MP2T"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
