package app

import (
	"context"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/internal/ingest/repository"
	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
)

// TransitionObserver 接收 pipeline 每一次狀態轉換；失敗不影響 pipeline
type TransitionObserver interface {
	OnTransition(ctx context.Context, t domain.Transition)
}

// ObserverFunc 讓一般函式實作 TransitionObserver
type ObserverFunc func(ctx context.Context, t domain.Transition)

// OnTransition call f
func (f ObserverFunc) OnTransition(ctx context.Context, t domain.Transition) { f(ctx, t) }

// Observers 依序通知多個 observer
type Observers []TransitionObserver

// OnTransition fan out
func (o Observers) OnTransition(ctx context.Context, t domain.Transition) {
	for _, obs := range o {
		if obs != nil {
			obs.OnTransition(ctx, t)
		}
	}
}

// LogObserver 將轉換寫入 log
var LogObserver = ObserverFunc(func(_ context.Context, t domain.Transition) {
	fields := []zap.Field{
		zap.String("job_id", t.JobID),
		zap.String("video_id", t.VideoID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
	}
	if t.To == domain.StateFailed {
		logger.Log.Error("pipeline 轉換為失敗", append(fields, zap.String("error", t.Error))...)
		return
	}
	logger.Log.Info("pipeline state transition", fields...)
})

// NewAuditObserver 寫入 mongo audit trail
func NewAuditObserver(log repository.TransitionLog) TransitionObserver {
	return ObserverFunc(func(ctx context.Context, t domain.Transition) {
		if err := log.Append(context.WithoutCancel(ctx), t); err != nil {
			logger.Log.Warn("寫入 pipeline audit log 失敗", zap.String("job_id", t.JobID), zap.Error(err))
		}
	})
}

// NewPublishObserver 推送到 redis channel，供 websocket 轉發
func NewPublishObserver(ps *repository.TransitionPubSub) TransitionObserver {
	return ObserverFunc(func(ctx context.Context, t domain.Transition) {
		if err := ps.Publish(context.WithoutCancel(ctx), t); err != nil {
			logger.Log.Warn("推送 pipeline 事件失敗", zap.String("job_id", t.JobID), zap.Error(err))
		}
	})
}
