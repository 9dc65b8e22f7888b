package database

import (
	"context"
	"fmt"
	"time"

	"video_ingest_service/pkg/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinIOClient definition minio client
// Core 提供 multipart 低階 API (NewMultipartUpload / PutObjectPart / CompleteMultipartUpload)
type MinIOClient struct {
	Client     *minio.Client
	Core       *minio.Core
	BucketName string
	Endpoint   string
	UseSSL     bool
}

// NewMinIOConnection create a new minio connection have retry
func NewMinIOConnection(d MinIOConnection) (*MinIOClient, error) {
	var mc *MinIOClient
	var err error

	for i := 1; i <= d.RetryCount; i++ {
		mc, err = NewMinioClient(d.Endpoint, d.User, d.Password, d.BucketName, d.UseSSL)
		if err == nil {
			logger.Log.Info("minIO 連線成功", zap.String("endpoint", d.Endpoint), zap.Int("attempt", i))
			return mc, nil
		}

		logger.Log.Warn("minIO 連線失敗",
			zap.String("endpoint", d.Endpoint),
			zap.Int("attempt", i),
			zap.Int("retry_count", d.RetryCount),
			zap.Error(err),
		)
		time.Sleep(d.RetryInterval)
	}

	return mc, err
}

// NewMinioClient create a new minio and ensure the bucket exists
func NewMinioClient(endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*MinIOClient, error) {
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	}
	core, err := minio.NewCore(endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 失敗: %w", err)
	}
	minioClient := core.Client

	ctx := context.Background()
	exists, err := minioClient.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("檢查 bucket [%s] 失敗: %w", bucketName, err)
	}

	if !exists {
		if err = minioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("建立 bucket [%s] 失敗: %w", bucketName, err)
		}
		logger.Log.Info("Bucket 建立成功", zap.String("bucket", bucketName))
	}

	return &MinIOClient{
		Client:     minioClient,
		Core:       core,
		BucketName: bucketName,
		Endpoint:   endpoint,
		UseSSL:     useSSL,
	}, nil
}
