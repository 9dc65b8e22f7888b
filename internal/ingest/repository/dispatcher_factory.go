package repository

import (
	"fmt"

	"video_ingest_service/pkg/config"
	"video_ingest_service/pkg/database"

	"github.com/streadway/amqp"
)

const (
	// DriverRabbitMQ queue.driver = rabbitmq
	DriverRabbitMQ = "rabbitmq"
	// DriverKafka queue.driver = kafka
	DriverKafka = "kafka"
)

// OpenDispatcher 依 queue.driver 建立 JobDispatcher；回傳的 JobDispatcher.Close 會一併關閉底層連線
func OpenDispatcher(cfg config.QueueConfig) (JobDispatcher, error) {
	switch cfg.Driver {
	case DriverKafka:
		return NewKafkaDispatcher(database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Topic,
			GroupID:       cfg.Kafka.GroupID,
			RetryCount:    cfg.RetryCount,
			RetryInterval: cfg.RetryInterval,
		})
	case DriverRabbitMQ, "":
		rabbitURL := fmt.Sprintf("amqp://%s:%s@%s:%d/",
			cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.Host, cfg.RabbitMQ.Port)
		conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
			ConnectStr:    rabbitURL,
			RetryCount:    cfg.RetryCount,
			RetryInterval: cfg.RetryInterval,
		})
		if err != nil {
			return nil, err
		}
		d, err := NewRabbitDispatcher(conn, cfg.Topic)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return &connClosingDispatcher{JobDispatcher: d, conn: conn}, nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}

type connClosingDispatcher struct {
	JobDispatcher
	conn *amqp.Connection
}

func (c *connClosingDispatcher) Close() error {
	err := c.JobDispatcher.Close()
	if cErr := c.conn.Close(); err == nil {
		err = cErr
	}
	return err
}
