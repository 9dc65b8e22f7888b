package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"video_ingest_service/internal/ingest/app"
	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// SendReq POST /send
type SendReq struct {
	Message domain.SubmitJobReq `json:"message"`
}

// EventSubscriber 訂閱單一 job 的狀態轉換
type EventSubscriber interface {
	Subscribe(ctx context.Context, jobID string, handler func(domain.Transition)) error
}

// EventFrame websocket frame
type EventFrame struct {
	Type       string               `json:"type"`
	Job        *domain.TranscodeJob `json:"job,omitempty"`
	Transition *domain.Transition   `json:"transition,omitempty"`
	Error      string               `json:"error,omitempty"`
}

const (
	frameJob        = "job"
	frameTransition = "transition"
	frameError      = "error"

	writeWait = 5 * time.Second
)

// JobHandler transcode job api
type JobHandler struct {
	jobs   app.JobUseCase
	events EventSubscriber
}

// NewJobHandler create job handler
func NewJobHandler(jobs app.JobUseCase, events EventSubscriber) *JobHandler {
	return &JobHandler{jobs: jobs, events: events}
}

// Send godoc
// @Summary Submit transcode job
// @Description 以 upload 完成時的 final ETag 建立轉碼工作並送入佇列
// @Tags Job
// @Accept json
// @Produce plain
// @Param request body SendReq true "job message"
// @Success 202 {string} string "Message sent"
// @Failure 400 {object} ErrorRes
// @Failure 500 {object} ErrorRes
// @Router /send [post]
func (h *JobHandler) Send(c *fiber.Ctx) error {
	var req SendReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorRes{Error: "invalid request body"})
	}
	job, err := h.jobs.Submit(c.UserContext(), req.Message)
	if err != nil {
		return sendError(c, err)
	}
	c.Set("X-Job-ID", job.JobID)
	return c.Status(http.StatusAccepted).SendString("Message sent: " + job.JobID)
}

// GetJob godoc
// @Summary Get transcode job
// @Tags Job
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} domain.TranscodeJob
// @Failure 404 {object} ErrorRes
// @Router /jobs/{id} [get]
func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	job, err := h.jobs.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(job)
}

// RequireUpgrade 只允許 websocket upgrade request
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Events websocket：先送 job 目前的記錄，再轉送每次狀態轉換，直到終止狀態或 client 離線
func (h *JobHandler) Events(conn *websocket.Conn) {
	jobID := conn.Params("id")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		writeMu sync.Mutex
		once    sync.Once
		done    = make(chan struct{})
	)
	finish := func() { once.Do(func() { close(done) }) }
	send := func(frame EventFrame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(frame)
	}

	var (
		orderMu      sync.Mutex
		snapshotSent bool
		pending      []domain.Transition
	)
	forward := func(t domain.Transition) {
		if err := send(EventFrame{Type: frameTransition, Transition: &t}); err != nil {
			logger.Log.Warn("websocket 推送失敗", zap.String("job_id", jobID), zap.Error(err))
			finish()
			return
		}
		if t.To.Terminal() {
			finish()
		}
	}

	// 先訂閱再讀記錄，避免漏掉兩者之間的轉換；job frame 送出前收到的轉換先暫存
	err := h.events.Subscribe(ctx, jobID, func(t domain.Transition) {
		orderMu.Lock()
		defer orderMu.Unlock()
		if !snapshotSent {
			pending = append(pending, t)
			return
		}
		forward(t)
	})
	if err != nil {
		logger.Log.Error("訂閱 job 事件失敗", zap.String("job_id", jobID), zap.Error(err))
		_ = send(EventFrame{Type: frameError, Error: err.Error()})
		h.closeConn(conn, &writeMu)
		return
	}

	job, err := h.jobs.Get(ctx, jobID)
	if err != nil {
		_ = send(EventFrame{Type: frameError, Error: err.Error()})
		h.closeConn(conn, &writeMu)
		return
	}

	orderMu.Lock()
	if err := send(EventFrame{Type: frameJob, Job: job}); err != nil {
		orderMu.Unlock()
		return
	}
	snapshotSent = true
	for _, t := range pending {
		forward(t)
	}
	pending = nil
	orderMu.Unlock()
	if job.Status.Terminal() {
		finish()
	}

	// client 關閉連線時 ReadMessage 會回傳錯誤
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				finish()
				return
			}
		}
	}()

	<-done
	h.closeConn(conn, &writeMu)
	_ = conn.Close()
	<-readerDone
	logger.Log.Debug("websocket closed", zap.String("job_id", jobID))
}

func (h *JobHandler) closeConn(conn *websocket.Conn, mu *sync.Mutex) {
	mu.Lock()
	defer mu.Unlock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
