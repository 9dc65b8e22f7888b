package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorRes error response body
type ErrorRes struct {
	Error string `json:"error"`
}

// ConnectCheck check api connect start
// @Summary Check ingest service status
// @Description Returns a simple confirmation message
// @Tags Shared
// @Success 200 {string} string "ingest service start!"
// @Router / [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("ingest service start!")
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Description Enable or disable debug logging for the ingest service
// @Tags Shared
// @Param status query bool true "Debug status"
// @Success 200 {string} string "debug mode updated"
// @Failure 400 {object} ErrorRes "Invalid status value"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	statusStr := c.Query("status")
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorRes{Error: "invalid status value"})
	}
	logger.Log.Info("debug", zap.Bool("status", status))
	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}

// errorStatus 將 domain 錯誤對應到 HTTP status
func errorStatus(err error) int {
	var (
		uploadErr  *domain.UploadError
		jobErr     *domain.JobError
		storageErr *domain.StorageError
	)
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.As(err, &uploadErr):
		switch uploadErr.Kind {
		case domain.UploadSessionNotFound:
			return http.StatusNotFound
		case domain.UploadPartMismatch:
			return http.StatusConflict
		default:
			return http.StatusBadRequest
		}
	case errors.As(err, &jobErr):
		if jobErr.Kind == domain.JobNotFound {
			return http.StatusNotFound
		}
		return http.StatusUnprocessableEntity
	case errors.As(err, &storageErr):
		switch storageErr.Kind {
		case domain.StorageNotFound:
			return http.StatusNotFound
		case domain.StorageRetryable:
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}

func sendError(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(ErrorRes{Error: err.Error()})
}
