package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"video_ingest_service/internal/ingest/app"
	"video_ingest_service/internal/ingest/repository"
	"video_ingest_service/pkg/config"
	"video_ingest_service/pkg/database"
	"video_ingest_service/pkg/logger"
	testtool "video_ingest_service/pkg/test_tool"

	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.TranscodeWorker, config.EnvConfig.TranscodeWorkerLogPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.Worker](config.EnvConfig.TranscodeWorker, config.EnvConfig.TranscodeWorkerYAMLPath)

	// 設定錯誤直接結束，不要等到第一個 job 才發現
	opts, err := app.NewPipelineOptions(cfg.Pipeline)
	if err != nil {
		log.Fatalf("pipeline 設定錯誤: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. MinIO
	minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:   fmt.Sprintf("%s:%d", cfg.MinIO.Host, cfg.MinIO.Port),
		User:       cfg.MinIO.User,
		Password:   cfg.MinIO.Password,
		BucketName: cfg.MinIO.BucketName,
		UseSSL:     cfg.MinIO.UseSSL,

		RetryCount:    cfg.MinIO.RetryCount,
		RetryInterval: cfg.MinIO.RetryInterval,
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to minio after retries", zap.String("host", cfg.MinIO.Host), zap.Error(err))
	}
	storage := repository.NewMinIOGateway(minioClient, cfg.MinIO.PublicBaseURL)

	// 2. Redis：ETag 去重與即時事件
	redisClient, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Unable to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	defer redisClient.Close()

	// 3. PostgreSQL：job 狀態
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		cfg.PostgreSQL.Host, cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database, cfg.PostgreSQL.Port)
	db, err := database.NewPGConnection(database.Connection{
		ConnectStr:    dsn,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval) * time.Second,
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL database after retries",
			zap.String("host", cfg.PostgreSQL.Host), zap.Error(err))
	}
	jobRepo := repository.NewJobRepo(db)
	if err := jobRepo.AutoMigrate(); err != nil {
		log.Fatalf("資料表遷移失敗: %v", err)
	}

	// 4. MongoDB：狀態轉換 audit log
	mongoURI := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoDB.User, cfg.MongoDB.Password, cfg.MongoDB.Host, cfg.MongoDB.Port)
	mongoDB, err := database.NewMongoDB(ctx, database.Connection{
		ConnectStr:    mongoURI,
		RetryCount:    cfg.MongoDB.RetryCount,
		RetryInterval: time.Duration(cfg.MongoDB.RetryInterval) * time.Second,
	}, cfg.MongoDB.Database)
	if err != nil {
		logger.Log.Fatal("Unable to connect to mongoDB", zap.String("host", cfg.MongoDB.Host), zap.Error(err))
	}
	defer mongoDB.Close(context.Background())

	// 5. Job queue
	dispatcher, err := repository.OpenDispatcher(cfg.Queue)
	if err != nil {
		logger.Log.Fatal("建立 job dispatcher 失敗", zap.String("driver", cfg.Queue.Driver), zap.Error(err))
	}
	defer dispatcher.Close()

	observer := app.Observers{
		app.LogObserver,
		app.NewAuditObserver(repository.NewMongoTransitionLog(mongoDB.Database)),
		app.NewPublishObserver(repository.NewTransitionPubSub(redisClient)),
	}
	orchestrator := app.NewOrchestrator(
		storage,
		app.NewFFmpegEncoder(cfg.Pipeline.FFmpegPath),
		repository.NewHTTPMetadataClient(cfg.Metadata.BaseURL, cfg.Metadata.Timeout),
		observer,
		opts,
	)
	consumer := app.NewConsumer(
		dispatcher,
		jobRepo,
		repository.NewRedisETagGuard(redisClient, cfg.Pipeline.DedupeTTL),
		orchestrator,
		cfg.Concurrency,
		cfg.Pipeline.JobTimeout,
	)

	// 6. gRPC health
	lis, err := net.Listen("tcp", cfg.IP+":"+cfg.HealthPort)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("Failed to listen Port(%s): ", cfg.HealthPort), zap.Error(err))
	}
	healthServer := app.NewHealthServer()
	go func() {
		if err := healthServer.Serve(lis); err != nil {
			logger.Log.Error("health server stopped", zap.Error(err))
		}
	}()

	testtool.StartPprof(cfg.Pprof)

	healthServer.SetServing(true)
	logger.Log.Info("transcode worker started",
		zap.Int("concurrency", cfg.Concurrency),
		zap.Strings("resolutions", cfg.Pipeline.Resolutions),
		zap.String("health_port", cfg.HealthPort),
	)

	// consumer 在 ctx 結束 (SIGTERM) 後返回，進行中的 ffmpeg 會被 kill，job 記為 Failed
	if err := consumer.StartConsumer(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.Error("consumer stopped with error", zap.Error(err))
	}

	healthServer.SetServing(false)
	healthServer.Stop()
	logger.Log.Info("transcode worker stopped")
}
