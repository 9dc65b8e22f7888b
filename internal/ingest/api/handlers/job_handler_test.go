package handlers

import (
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/logger"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newJobApp(uc *MockJobUseCase, sub EventSubscriber) *fiber.App {
	logger.SetNewNop()
	h := NewJobHandler(uc, sub)
	r := fiber.New(fiber.Config{DisableStartupMessage: true})
	r.Post("/send", h.Send)
	r.Get("/jobs/:id", h.GetJob)
	r.Use("/jobs/:id/events", RequireUpgrade)
	r.Get("/jobs/:id/events", fiberws.New(h.Events))
	return r
}

func TestSend(t *testing.T) {
	uc := new(MockJobUseCase)
	msg := domain.SubmitJobReq{FinalETag: "abc-2", Title: "cat", Description: "d", UserID: "u1"}
	uc.On("Submit", mock.Anything, msg).Return(domain.TranscodeJob{JobID: "job-1", SourceETag: "abc-2", Status: domain.JobQueued}, nil)
	r := newJobApp(uc, newFakeSubscriber())

	res, err := r.Test(jsonRequest(http.MethodPost, "/send",
		`{"message":{"finalETag":"abc-2","title":"cat","description":"d","user_id":"u1"}}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, "job-1", res.Header.Get("X-Job-ID"))
	body, _ := io.ReadAll(res.Body)
	assert.Contains(t, string(body), "job-1")
}

func TestSendErrors(t *testing.T) {
	uc := new(MockJobUseCase)
	uc.On("Submit", mock.Anything, domain.SubmitJobReq{}).Return(domain.TranscodeJob{}, domain.ErrInvalidArgument)
	uc.On("Submit", mock.Anything, domain.SubmitJobReq{FinalETag: "e"}).Return(domain.TranscodeJob{}, errors.New("amqp: channel closed"))
	r := newJobApp(uc, newFakeSubscriber())

	res, err := r.Test(jsonRequest(http.MethodPost, "/send", `{"message":{}}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, err = r.Test(jsonRequest(http.MethodPost, "/send", `{"message":{"finalETag":"e"}}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)

	res, err = r.Test(jsonRequest(http.MethodPost, "/send", `not json`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestGetJob(t *testing.T) {
	uc := new(MockJobUseCase)
	uc.On("Get", mock.Anything, "job-1").Return(&domain.TranscodeJob{JobID: "job-1", Status: domain.JobRunning}, nil)
	uc.On("Get", mock.Anything, "nope").Return(nil, &domain.JobError{Kind: domain.JobNotFound, JobID: "nope"})
	r := newJobApp(uc, newFakeSubscriber())

	res, err := r.Test(jsonRequest(http.MethodGet, "/jobs/job-1", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, domain.JobRunning, decode[domain.TranscodeJob](t, res).Status)

	res, err = r.Test(jsonRequest(http.MethodGet, "/jobs/nope", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	// 不是 websocket upgrade
	res, err = r.Test(jsonRequest(http.MethodGet, "/jobs/job-1/events", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, res.StatusCode)
}

func serve(t *testing.T, r *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = r.Listener(ln) }()
	t.Cleanup(func() { _ = r.Shutdown() })
	return ln.Addr().String()
}

func readFrame(t *testing.T, conn *websocket.Conn) EventFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame EventFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestEventsStreamsUntilTerminal(t *testing.T) {
	uc := new(MockJobUseCase)
	uc.On("Get", mock.Anything, "job-1").Return(&domain.TranscodeJob{JobID: "job-1", Status: domain.JobRunning}, nil)
	sub := newFakeSubscriber()
	addr := serve(t, newJobApp(uc, sub))

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/jobs/job-1/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case id := <-sub.subscribed:
		assert.Equal(t, "job-1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("handler never subscribed")
	}

	first := readFrame(t, conn)
	assert.Equal(t, frameJob, first.Type)
	require.NotNil(t, first.Job)
	assert.Equal(t, domain.JobRunning, first.Job.Status)

	sub.emit(domain.Transition{JobID: "job-1", From: domain.StateSegmentsUploaded, To: domain.StateMasterPlaylistPublished})
	sub.emit(domain.Transition{JobID: "job-1", From: domain.StateArchived, To: domain.StateCompleted})

	second := readFrame(t, conn)
	assert.Equal(t, frameTransition, second.Type)
	assert.Equal(t, domain.StateMasterPlaylistPublished, second.Transition.To)
	third := readFrame(t, conn)
	assert.Equal(t, domain.StateCompleted, third.Transition.To)

	// 終止狀態後 server 主動關閉
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestEventsSnapshotPrecedesEarlyTransitions(t *testing.T) {
	uc := new(MockJobUseCase)
	sub := newFakeSubscriber()
	// 讀取 job 記錄期間就發生的轉換，仍要排在 job frame 之後
	uc.On("Get", mock.Anything, "job-3").Run(func(mock.Arguments) {
		sub.emit(domain.Transition{JobID: "job-3", From: domain.StateCreated, To: domain.StateSourceResolved})
	}).Return(&domain.TranscodeJob{JobID: "job-3", Status: domain.JobRunning}, nil)
	addr := serve(t, newJobApp(uc, sub))

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/jobs/job-3/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readFrame(t, conn)
	assert.Equal(t, frameJob, first.Type)
	second := readFrame(t, conn)
	assert.Equal(t, frameTransition, second.Type)
	require.NotNil(t, second.Transition)
	assert.Equal(t, domain.StateSourceResolved, second.Transition.To)

	sub.emit(domain.Transition{JobID: "job-3", From: domain.StateArchived, To: domain.StateFailed})
	third := readFrame(t, conn)
	assert.Equal(t, domain.StateFailed, third.Transition.To)
}

func TestEventsTerminalJobClosesImmediately(t *testing.T) {
	uc := new(MockJobUseCase)
	uc.On("Get", mock.Anything, "job-2").Return(&domain.TranscodeJob{JobID: "job-2", Status: domain.JobFailed, Error: "SourceNotFound"}, nil)
	addr := serve(t, newJobApp(uc, newFakeSubscriber()))

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/jobs/job-2/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	frame := readFrame(t, conn)
	assert.Equal(t, domain.JobFailed, frame.Job.Status)
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestEventsUnknownJob(t *testing.T) {
	uc := new(MockJobUseCase)
	uc.On("Get", mock.Anything, "nope").Return(nil, &domain.JobError{Kind: domain.JobNotFound, JobID: "nope"})
	addr := serve(t, newJobApp(uc, newFakeSubscriber()))

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/jobs/nope/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	frame := readFrame(t, conn)
	assert.Equal(t, frameError, frame.Type)
	assert.Contains(t, frame.Error, "NotFound")
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, errorStatus(domain.ErrInvalidArgument))
	assert.Equal(t, http.StatusNotFound, errorStatus(&domain.JobError{Kind: domain.JobNotFound}))
	assert.Equal(t, http.StatusUnprocessableEntity, errorStatus(&domain.JobError{Kind: domain.JobDuplicate}))
	assert.Equal(t, http.StatusNotFound, errorStatus(&domain.StorageError{Kind: domain.StorageNotFound}))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(errors.New("boom")))
}
