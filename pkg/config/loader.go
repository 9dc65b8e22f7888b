package config

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvInfo 集合服務名稱、yaml 與 log 路徑 from .env
type EnvInfo struct {
	// service name
	IngestService   string
	TranscodeWorker string

	// service yaml path
	IngestServiceYAMLPath   string
	TranscodeWorkerYAMLPath string

	// service log path
	IngestServiceLogPath   string
	TranscodeWorkerLogPath string
}

// EnvConfig 集合服務設定
var (
	EnvConfig = initEnv()
	envConfig EnvInfo
	once      sync.Once
	env       string
)

func initEnv() EnvInfo {
	once.Do(func() {

		path, err := GetPath(".env", 5)
		if err != nil {
			log.Printf("Warning: Could not get .env path: %v", err)
		}

		if err := godotenv.Load(path); err != nil {
			log.Printf("Warning: Could not load .env file: %v", err)
		}

		env = os.Getenv("ENV")

		envConfig = EnvInfo{
			IngestService:   getEnv("INGEST_SERVICE", "ingest_service"),
			TranscodeWorker: getEnv("TRANSCODE_WORKER", "transcode_worker"),

			IngestServiceYAMLPath:   getEnv("INGEST_SERVICE_YAML", "./configs"),
			TranscodeWorkerYAMLPath: getEnv("TRANSCODE_WORKER_YAML", "./configs"),

			IngestServiceLogPath:   getEnv("INGEST_SERVICE_LOG", "./logs/ingest"),
			TranscodeWorkerLogPath: getEnv("TRANSCODE_WORKER_LOG", "./logs/worker"),
		}
	})

	return envConfig
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// IsProduction check run env
func IsProduction() bool {
	return env == "production"
}

// IsLocal check run env
func IsLocal() bool {
	return env == "local"
}

// LoadConfig 加載配置，失敗直接結束程式
func LoadConfig[T any](serviceName string, configPath string) T {
	cfg, err := ReadConfig[T](serviceName, configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	return cfg
}

// ReadConfig 讀取 <configPath>/<serviceName>.yaml，替換 ${} 環境變數並套用預設值
func ReadConfig[T any](serviceName string, configPath string) (T, error) {
	var cfg T
	v := viper.New()
	v.SetConfigName(serviceName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	setDefaults(v)

	// 自動讀取環境變數
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	rawConfig, err := os.ReadFile(v.ConfigFileUsed())
	if err != nil {
		return cfg, fmt.Errorf("read raw config file: %w", err)
	}

	// 替換 ${} 占位符為環境變數的值
	expandedConfig := os.ExpandEnv(string(rawConfig))
	if err := v.ReadConfig(bytes.NewBufferString(expandedConfig)); err != nil {
		return cfg, fmt.Errorf("read expanded config: %w", err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("health_port", "9090")
	v.SetDefault("concurrency", 1)

	v.SetDefault("minio.bucket_name", "videos")
	v.SetDefault("minio.retry_count", 5)
	v.SetDefault("minio.retry_interval", 2*time.Second)

	v.SetDefault("queue.driver", "rabbitmq")
	v.SetDefault("queue.topic", "transcode")
	v.SetDefault("queue.kafka.group_id", "transcode-worker")
	v.SetDefault("queue.retry_count", 5)
	v.SetDefault("queue.retry_interval", 2*time.Second)

	v.SetDefault("upload.session_ttl", 24*time.Hour)
	v.SetDefault("upload.max_chunk_size", 64<<20)

	v.SetDefault("pipeline.resolutions", []string{"360p", "480p", "720p"})
	v.SetDefault("pipeline.segment_duration", 6)
	v.SetDefault("pipeline.thumbnail_offset", time.Second)
	v.SetDefault("pipeline.job_timeout", 2*time.Hour)
	v.SetDefault("pipeline.max_parallel_encodes", 4)
	v.SetDefault("pipeline.work_dir", "./tmp")
	v.SetDefault("pipeline.ffmpeg_path", "ffmpeg")
	v.SetDefault("pipeline.archive_prefix", "archived")
	v.SetDefault("pipeline.dedupe_ttl", 24*time.Hour)

	v.SetDefault("metadata.timeout", 10*time.Second)
}

// GetPath use fileName loop maxCount find file path
func GetPath(fileName string, maxCount int) (string, error) {
	path := "./" + fileName

	for i := 0; i < maxCount; i++ {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = "../" + path
	}
	return "", errors.New(fileName + " can't find path")
}
