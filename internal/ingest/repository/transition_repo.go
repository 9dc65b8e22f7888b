package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// TransitionLog pipeline 狀態轉換的 audit trail
type TransitionLog interface {
	Append(ctx context.Context, t domain.Transition) error
	ListByJob(ctx context.Context, jobID string) ([]domain.Transition, error)
}

type mongoTransitionLog struct {
	collection *mongo.Collection
}

// NewMongoTransitionLog 每次轉換一筆 document (collection: pipeline_events)
func NewMongoTransitionLog(db *mongo.Database) TransitionLog {
	return &mongoTransitionLog{collection: db.Collection("pipeline_events")}
}

func (m *mongoTransitionLog) Append(ctx context.Context, t domain.Transition) error {
	_, err := m.collection.InsertOne(ctx, t)
	return err
}

func (m *mongoTransitionLog) ListByJob(ctx context.Context, jobID string) ([]domain.Transition, error) {
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: 1}})
	cursor, err := m.collection.Find(ctx, bson.M{"job_id": jobID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []domain.Transition
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TransitionChannel redis pub/sub channel for one job
func TransitionChannel(jobID string) string {
	return "transcode:job:" + jobID
}

// TransitionPubSub 將狀態轉換即時推送給 ingest service 的 websocket
type TransitionPubSub struct {
	client *redis.Client
}

// NewTransitionPubSub create TransitionPubSub
func NewTransitionPubSub(client *redis.Client) *TransitionPubSub {
	return &TransitionPubSub{client: client}
}

// Publish 將 transition 序列化後發布到 transcode:job:<jobId>
func (r *TransitionPubSub) Publish(ctx context.Context, t domain.Transition) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, TransitionChannel(t.JobID), data).Err()
}

// Subscribe 訂閱 job 的轉換事件，收到終止狀態或 ctx 結束時關閉訂閱
func (r *TransitionPubSub) Subscribe(ctx context.Context, jobID string, handler func(domain.Transition)) error {
	sub := r.client.Subscribe(ctx, TransitionChannel(jobID))
	// 確認訂閱成功再返回，避免漏掉訂閱前後的訊息
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("subscribe %s: %w", TransitionChannel(jobID), err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case m, ok := <-ch:
				if !ok {
					return
				}
				var t domain.Transition
				if err := json.Unmarshal([]byte(m.Payload), &t); err != nil {
					logger.Log.Warn("無法解析 transition 訊息", zap.String("channel", m.Channel), zap.Error(err))
					continue
				}
				handler(t)
				if t.To.Terminal() {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// ETagGuard 以 sourceETag 去重，避免重複投遞造成重複的 VideoAsset
type ETagGuard interface {
	Claim(ctx context.Context, etag, jobID string) (bool, error)
	Release(ctx context.Context, etag string) error
}

type redisETagGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisETagGuard SETNX transcode:etag:<etag>
func NewRedisETagGuard(client *redis.Client, ttl time.Duration) ETagGuard {
	return &redisETagGuard{client: client, ttl: ttl}
}

func etagKey(etag string) string { return "transcode:etag:" + etag }

func (g *redisETagGuard) Claim(ctx context.Context, etag, jobID string) (bool, error) {
	return g.client.SetNX(ctx, etagKey(etag), jobID, g.ttl).Result()
}

func (g *redisETagGuard) Release(ctx context.Context, etag string) error {
	return g.client.Del(ctx, etagKey(etag)).Err()
}
