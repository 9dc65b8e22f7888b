package repository

import (
	"context"
	"errors"
	"fmt"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/database"
	"video_ingest_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaMessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaDispatcher struct {
	writer    kafkaMessageWriter
	newReader func() (kafkaMessageReader, error)
}

// NewKafkaDispatcher topic 版本的 JobDispatcher；訊息以 sourceETag 為 key
// 每次 Consume 建立一個 consumer group reader，處理完才 commit offset
func NewKafkaDispatcher(conn database.KafkaConnection) (JobDispatcher, error) {
	writer, err := database.NewKafkaWriterWithRetry(conn)
	if err != nil {
		return nil, err
	}
	return &kafkaDispatcher{
		writer: writer,
		newReader: func() (kafkaMessageReader, error) {
			return database.NewKafkaReader(conn)
		},
	}, nil
}

func (k *kafkaDispatcher) Publish(ctx context.Context, job domain.TranscodeJob) error {
	body, err := EncodeJob(job)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.SourceETag),
		Value: body,
		Headers: []kafka.Header{
			{Key: "job_id", Value: []byte(job.JobID)},
		},
	})
}

func (k *kafkaDispatcher) Consume(ctx context.Context, handler JobHandler) error {
	reader, err := k.newReader()
	if err != nil {
		return fmt.Errorf("create kafka reader: %w", err)
	}
	defer reader.Close()

	logger.Log.Info("Kafka consumer 已啟動，等待轉碼工作訊息")
	return consumeKafka(ctx, reader, handler)
}

func consumeKafka(ctx context.Context, reader kafkaMessageReader, handler JobHandler) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Log.Info("Kafka consumer 收到停止訊號")
				return ctx.Err()
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		job, err := DecodeJob(msg.Value)
		if err != nil {
			logger.Log.Error("丟棄無法解析的轉碼工作訊息",
				zap.Int64("offset", msg.Offset),
				zap.Int("partition", msg.Partition),
				zap.Error(err),
			)
		} else if err := handler(ctx, job); err != nil {
			logger.Log.Error("處理轉碼工作失敗", zap.String("job_id", job.JobID), zap.Error(err))
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Log.Error("commit offset 失敗", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (k *kafkaDispatcher) Close() error {
	return k.writer.Close()
}
