package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "video_ingest_service/cmd/ingest_service/docs" // 引入生成的 Swagger 文件
	"video_ingest_service/internal/ingest/api/handlers"
	"video_ingest_service/internal/ingest/api/router"
	"video_ingest_service/internal/ingest/app"
	"video_ingest_service/internal/ingest/repository"
	"video_ingest_service/pkg/config"
	"video_ingest_service/pkg/database"
	"video_ingest_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.IngestService, config.EnvConfig.IngestServiceLogPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.Ingest](config.EnvConfig.IngestService, config.EnvConfig.IngestServiceYAMLPath)

	// 1. MinIO：multipart upload 直接寫入 bucket
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
	gateway := repository.NewMinIOGateway(minioClient, cfg.MinIO.PublicBaseURL)

	// 2. Redis：upload session 與 job 事件
	redisClient, err := database.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Unable to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	defer redisClient.Close()

	// 3. PostgreSQL：transcode job 記錄
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

	// 4. Job queue
	dispatcher, err := repository.OpenDispatcher(cfg.Queue)
	if err != nil {
		logger.Log.Fatal("建立 job dispatcher 失敗", zap.String("driver", cfg.Queue.Driver), zap.Error(err))
	}
	defer dispatcher.Close()

	uploadUC := app.NewUploadUseCase(repository.NewRedisUploadSessionRepo(redisClient, cfg.Upload.SessionTTL), gateway)
	jobUC := app.NewJobUseCase(jobRepo, dispatcher)
	uploadHandler := handlers.NewUploadHandler(uploadUC, cfg.Upload.MaxChunkSize)
	jobHandler := handlers.NewJobHandler(jobUC, repository.NewTransitionPubSub(redisClient))

	// 5. Fiber：body 上限需容納一個 chunk 加上表單欄位
	r := fiber.New(fiber.Config{
		BodyLimit: handlers.BodyLimit(cfg.Upload.MaxChunkSize),
	})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.IngestServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()
	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, uploadHandler, jobHandler)

	go func() {
		if err := r.Listen(cfg.IP + ":" + cfg.Port); err != nil {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()
	logger.Log.Info("ingest service listening", zap.String("port", cfg.Port))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Log.Info("收到停止訊號，關閉 ingest service")
	if err := r.ShutdownWithTimeout(30 * time.Second); err != nil {
		logger.Log.Error("shutdown failed", zap.Error(err))
	}
}
