package database

import (
	"context"
	"fmt"
	"time"

	"video_ingest_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewKafkaWriterWithRetry 先確認 broker 可連線再建立 Writer
// 不送測試訊息，避免 consumer 收到無法解析的 ping
func NewKafkaWriterWithRetry(k KafkaConnection) (*kafka.Writer, error) {
	if err := waitForBroker(k); err != nil {
		return nil, err
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(k.Brokers...),
		Topic:        k.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}, nil
}

// NewKafkaReader 建立 consumer group reader，offset 由呼叫端處理完後手動 commit
func NewKafkaReader(k KafkaConnection) (*kafka.Reader, error) {
	if err := waitForBroker(k); err != nil {
		return nil, err
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.Brokers,
		Topic:    k.Topic,
		GroupID:  k.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	}), nil
}

func waitForBroker(k KafkaConnection) error {
	if len(k.Brokers) == 0 {
		return fmt.Errorf("kafka brokers 未設定")
	}
	var err error
	for attempt := 1; attempt <= k.RetryCount; attempt++ {
		var conn *kafka.Conn
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, err = kafka.DialContext(ctx, "tcp", k.Brokers[0])
		cancel()
		if err == nil {
			conn.Close()
			logger.Log.Info("Kafka broker 連線成功", zap.Strings("brokers", k.Brokers), zap.Int("attempt", attempt))
			return nil
		}

		logger.Log.Warn("Kafka broker 連線失敗",
			zap.Int("attempt", attempt),
			zap.Int("retry_count", k.RetryCount),
			zap.Error(err),
		)
		time.Sleep(k.RetryInterval)
	}
	return fmt.Errorf("無法連線 Kafka，經過 %d 次嘗試: %w", k.RetryCount, err)
}
