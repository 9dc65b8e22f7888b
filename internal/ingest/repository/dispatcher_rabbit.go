package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/database"
	"video_ingest_service/pkg/logger"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

type rabbitDispatcher struct {
	conn  *amqp.Connection
	queue string

	mu    sync.Mutex
	pubCh *amqp.Channel
}

// NewRabbitDispatcher 宣告 durable queue 並建立發布用 channel
// 每次 Consume 另開 channel 並設定 Qos(1)，確保一次只拿一個 job
func NewRabbitDispatcher(conn *amqp.Connection, queue string) (JobDispatcher, error) {
	ch, err := database.GetRabbitMQChannelWithRetry(conn, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue, // queue name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // arguments
	); err != nil {
		ch.Close()
		return nil, fmt.Errorf("queue declare %s: %w", queue, err)
	}
	return &rabbitDispatcher{conn: conn, queue: queue, pubCh: ch}, nil
}

func (r *rabbitDispatcher) Publish(ctx context.Context, job domain.TranscodeJob) error {
	body, err := EncodeJob(job)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pubCh.Publish(
		"",      // 預設 exchange
		r.queue, // routing key = queue 名稱
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    job.JobID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (r *rabbitDispatcher) Consume(ctx context.Context, handler JobHandler) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	msgs, err := ch.Consume(
		r.queue, // queue
		"",      // consumer tag，留空由系統分配
		false,   // autoAck 為 false，使用手動確認
		false,   // exclusive
		false,   // noLocal
		false,   // noWait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.queue, err)
	}

	logger.Log.Info("Consumer 已啟動，等待轉碼工作訊息", zap.String("queue", r.queue))
	return consumeDeliveries(ctx, msgs, handler)
}

// consumeDeliveries 循序處理 delivery；處理完 (不論成功或失敗) 都 Ack，不重新排入佇列
func consumeDeliveries(ctx context.Context, msgs <-chan amqp.Delivery, handler JobHandler) error {
	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				logger.Log.Warn("RabbitMQ 消費 channel 已關閉")
				return nil
			}

			job, err := DecodeJob(d.Body)
			if err != nil {
				logger.Log.Error("丟棄無法解析的轉碼工作訊息",
					zap.String("message_id", d.MessageId),
					zap.ByteString("body", d.Body),
					zap.Error(err),
				)
				ackDelivery(d)
				continue
			}

			if err := handler(ctx, job); err != nil {
				logger.Log.Error("處理轉碼工作失敗", zap.String("job_id", job.JobID), zap.Error(err))
			}
			ackDelivery(d)
		case <-ctx.Done():
			logger.Log.Info("Consumer 收到停止訊號")
			return ctx.Err()
		}
	}
}

func ackDelivery(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		logger.Log.Error("確認訊息失敗", zap.String("message_id", d.MessageId), zap.Error(err))
	}
}

func (r *rabbitDispatcher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pubCh.Close()
}
