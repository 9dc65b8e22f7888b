package config

import "time"

// Ingest definition ingest_service YAML structure
type Ingest struct {
	Port string `mapstructure:"port"`
	IP   string `mapstructure:"ip"`

	MinIO      MinIOConfig    `mapstructure:"minio"`
	Redis      RedisConfig    `mapstructure:"redis"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Queue      QueueConfig    `mapstructure:"queue"`
	Upload     UploadConfig   `mapstructure:"upload"`
}

// Worker definition transcode_worker YAML structure
type Worker struct {
	IP         string `mapstructure:"ip"`
	HealthPort string `mapstructure:"health_port"`
	// Concurrency 同時運行的 consumer 數量，每個 consumer 內部仍為循序處理
	Concurrency int  `mapstructure:"concurrency"`
	Pprof       bool `mapstructure:"pprof"`

	MinIO      MinIOConfig    `mapstructure:"minio"`
	Redis      RedisConfig    `mapstructure:"redis"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	MongoDB    DatabaseConfig `mapstructure:"mongo"`
	Queue      QueueConfig    `mapstructure:"queue"`
	Pipeline   PipelineConfig `mapstructure:"pipeline"`
	Metadata   MetadataConfig `mapstructure:"metadata"`
}

// RedisConfig definition redis setting
// SentinelAddrs 有值時使用哨兵模式，否則直接連 Addr
type RedisConfig struct {
	Addr          string   `mapstructure:"addr"`
	Password      string   `mapstructure:"password"`
	RedisDB       int      `mapstructure:"redis_db"`
	MasterName    string   `mapstructure:"master_name"`
	SentinelAddrs []string `mapstructure:"sentinel_addrs"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// MinIOConfig definition object storage setting
type MinIOConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	BucketName    string        `mapstructure:"bucket_name"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// QueueConfig definition job queue setting
type QueueConfig struct {
	// Driver "rabbitmq" 或 "kafka"
	Driver   string         `mapstructure:"driver"`
	Topic    string         `mapstructure:"topic"`
	RabbitMQ DatabaseConfig `mapstructure:"rabbitmq"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`

	RetryCount    int           `mapstructure:"retry_count"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// KafkaConfig definition kafka setting
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

// UploadConfig definition multipart upload setting
type UploadConfig struct {
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	MaxChunkSize int64         `mapstructure:"max_chunk_size"`
}

// PipelineConfig definition transcode pipeline setting
type PipelineConfig struct {
	Resolutions        []string      `mapstructure:"resolutions"`
	SegmentDuration    int           `mapstructure:"segment_duration"`
	ThumbnailOffset    time.Duration `mapstructure:"thumbnail_offset"`
	JobTimeout         time.Duration `mapstructure:"job_timeout"`
	MaxParallelEncodes int           `mapstructure:"max_parallel_encodes"`
	WorkDir            string        `mapstructure:"work_dir"`
	FFmpegPath         string        `mapstructure:"ffmpeg_path"`
	ArchivePrefix      string        `mapstructure:"archive_prefix"`
	DedupeTTL          time.Duration `mapstructure:"dedupe_ttl"`
}

// MetadataConfig definition video metadata service callback setting
type MetadataConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}
