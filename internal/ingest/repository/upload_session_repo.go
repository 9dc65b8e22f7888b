package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/database"

	"github.com/go-redis/redis/v8"
)

// UploadSessionRepo multipart upload session 儲存
// parts 以 partNumber 為 key 各自寫入，不需要跨 part 的鎖
type UploadSessionRepo interface {
	Create(ctx context.Context, s domain.UploadSession) error
	Get(ctx context.Context, uploadID string) (domain.UploadSession, error)
	Update(ctx context.Context, s domain.UploadSession) error
	// MarkUploading 原子地把 session 轉成 Uploading，totalChunks 只在尚未設定時寫入
	MarkUploading(ctx context.Context, uploadID string, totalChunks int) (domain.UploadSession, error)
	PutPart(ctx context.Context, uploadID string, partNumber int, etag string) error
	Parts(ctx context.Context, uploadID string) (map[int]string, error)
	Delete(ctx context.Context, uploadID string) error
}

func sessionNotFound(uploadID string) error {
	return &domain.UploadError{Kind: domain.UploadSessionNotFound, UploadID: uploadID, Msg: "upload session not found"}
}

// applyUploading 回傳 session 是否有變動；已設定的 TotalChunks 不會被覆蓋
func applyUploading(s *domain.UploadSession, totalChunks int) bool {
	changed := false
	if s.Status == domain.UploadInitiated {
		s.Status = domain.UploadUploading
		changed = true
	}
	if s.TotalChunks == 0 && totalChunks > 0 {
		s.TotalChunks = totalChunks
		changed = true
	}
	return changed
}

const markUploadingRetries = 5

type redisUploadSessionRepo struct {
	client *redis.Client
	meta   database.RedisRepository[domain.UploadSession]
	ttl    time.Duration
}

// NewRedisUploadSessionRepo session meta 存 upload:<id> (JSON)，parts 存 upload:<id>:parts (hash)
func NewRedisUploadSessionRepo(client *redis.Client, ttl time.Duration) UploadSessionRepo {
	return &redisUploadSessionRepo{
		client: client,
		meta:   database.NewRedisRepository[domain.UploadSession](client),
		ttl:    ttl,
	}
}

func metaKey(uploadID string) string  { return "upload:" + uploadID }
func partsKey(uploadID string) string { return "upload:" + uploadID + ":parts" }

func (r *redisUploadSessionRepo) Create(ctx context.Context, s domain.UploadSession) error {
	return r.meta.Set(ctx, metaKey(s.UploadID), s, r.ttl)
}

func (r *redisUploadSessionRepo) Get(ctx context.Context, uploadID string) (domain.UploadSession, error) {
	s, err := r.meta.Get(ctx, metaKey(uploadID))
	if errors.Is(err, database.ErrRedisNil) {
		return domain.UploadSession{}, sessionNotFound(uploadID)
	}
	return s, err
}

func (r *redisUploadSessionRepo) Update(ctx context.Context, s domain.UploadSession) error {
	return r.meta.Set(ctx, metaKey(s.UploadID), s, r.ttl)
}

func (r *redisUploadSessionRepo) MarkUploading(ctx context.Context, uploadID string, totalChunks int) (domain.UploadSession, error) {
	key := metaKey(uploadID)
	var out domain.UploadSession
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sessionNotFound(uploadID)
		}
		if err != nil {
			return err
		}
		var s domain.UploadSession
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("corrupt upload session %s: %w", key, err)
		}
		out = s
		if !applyUploading(&out, totalChunks) {
			return nil
		}
		data, err := json.Marshal(out)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}

	// WATCH 期間有其他 part 改寫 meta 就重讀一次
	for i := 0; i < markUploadingRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return domain.UploadSession{}, fmt.Errorf("mark upload %s uploading: %w", uploadID, redis.TxFailedErr)
}

func (r *redisUploadSessionRepo) PutPart(ctx context.Context, uploadID string, partNumber int, etag string) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, partsKey(uploadID), strconv.Itoa(partNumber), etag)
	pipe.Expire(ctx, partsKey(uploadID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	// 有新的 part 進來就延長 session
	return r.meta.ExtendTTL(ctx, metaKey(uploadID), r.ttl)
}

func (r *redisUploadSessionRepo) Parts(ctx context.Context, uploadID string) (map[int]string, error) {
	raw, err := r.client.HGetAll(ctx, partsKey(uploadID)).Result()
	if err != nil {
		return nil, err
	}
	parts := make(map[int]string, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("corrupt part number %q in %s: %w", k, partsKey(uploadID), err)
		}
		parts[n] = v
	}
	return parts, nil
}

func (r *redisUploadSessionRepo) Delete(ctx context.Context, uploadID string) error {
	return r.client.Del(ctx, metaKey(uploadID), partsKey(uploadID)).Err()
}

type memoryUploadSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.UploadSession
	parts    map[string]map[int]string
}

// NewMemoryUploadSessionRepo 單機 / 測試用
func NewMemoryUploadSessionRepo() UploadSessionRepo {
	return &memoryUploadSessionRepo{
		sessions: make(map[string]domain.UploadSession),
		parts:    make(map[string]map[int]string),
	}
}

func (r *memoryUploadSessionRepo) Create(_ context.Context, s domain.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.UploadID] = s
	r.parts[s.UploadID] = make(map[int]string)
	return nil
}

func (r *memoryUploadSessionRepo) Get(_ context.Context, uploadID string) (domain.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[uploadID]
	if !ok {
		return domain.UploadSession{}, sessionNotFound(uploadID)
	}
	return s, nil
}

func (r *memoryUploadSessionRepo) Update(_ context.Context, s domain.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.UploadID]; !ok {
		return sessionNotFound(s.UploadID)
	}
	r.sessions[s.UploadID] = s
	return nil
}

func (r *memoryUploadSessionRepo) MarkUploading(_ context.Context, uploadID string, totalChunks int) (domain.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[uploadID]
	if !ok {
		return domain.UploadSession{}, sessionNotFound(uploadID)
	}
	if applyUploading(&s, totalChunks) {
		r.sessions[uploadID] = s
	}
	return s, nil
}

func (r *memoryUploadSessionRepo) PutPart(_ context.Context, uploadID string, partNumber int, etag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	parts, ok := r.parts[uploadID]
	if !ok {
		return sessionNotFound(uploadID)
	}
	parts[partNumber] = etag
	return nil
}

func (r *memoryUploadSessionRepo) Parts(_ context.Context, uploadID string) (map[int]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	parts, ok := r.parts[uploadID]
	if !ok {
		return nil, sessionNotFound(uploadID)
	}
	out := make(map[int]string, len(parts))
	for k, v := range parts {
		out[k] = v
	}
	return out, nil
}

func (r *memoryUploadSessionRepo) Delete(_ context.Context, uploadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, uploadID)
	delete(r.parts, uploadID)
	return nil
}
