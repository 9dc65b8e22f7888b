package handlers

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"video_ingest_service/internal/ingest/app"
	"video_ingest_service/internal/ingest/domain"
	"video_ingest_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// InitiateReq POST /initiate
type InitiateReq struct {
	FileName string `json:"fileName"`
}

// InitiateRes POST /initiate
type InitiateRes struct {
	UploadID string `json:"uploadId"`
}

// UploadPartRes POST /upload
type UploadPartRes struct {
	ETag string `json:"ETag"`
}

// CompleteReq POST /complete
type CompleteReq struct {
	UploadID string           `json:"uploadId"`
	FileName string           `json:"fileName"`
	Parts    []domain.PartTag `json:"parts"`
}

// AbortReq POST /abort
type AbortReq struct {
	UploadID string `json:"uploadId"`
}

// UploadHandler multipart upload api
type UploadHandler struct {
	upload       app.UploadUseCase
	maxChunkSize int64
}

// NewUploadHandler create upload handler; maxChunkSize <= 0 表示不限制
func NewUploadHandler(upload app.UploadUseCase, maxChunkSize int64) *UploadHandler {
	return &UploadHandler{upload: upload, maxChunkSize: maxChunkSize}
}

// formOverhead chunk 以外的表單欄位與 multipart boundary
const formOverhead = 1 << 20

// BodyLimit fiber.Config.BodyLimit; maxChunkSize <= 0 時不限制
func BodyLimit(maxChunkSize int64) int {
	if maxChunkSize <= 0 || maxChunkSize > int64(math.MaxInt-formOverhead) {
		return math.MaxInt
	}
	return int(maxChunkSize) + formOverhead
}

// Initiate godoc
// @Summary Initiate multipart upload
// @Tags Upload
// @Accept json
// @Produce json
// @Param request body InitiateReq true "file name"
// @Success 200 {object} InitiateRes
// @Failure 400 {object} ErrorRes
// @Failure 500 {object} ErrorRes
// @Router /initiate [post]
func (h *UploadHandler) Initiate(c *fiber.Ctx) error {
	var req InitiateReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorRes{Error: "invalid request body"})
	}
	uploadID, err := h.upload.Initiate(c.UserContext(), req.FileName)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(InitiateRes{UploadID: uploadID})
}

// UploadPart godoc
// @Summary Upload one chunk
// @Description chunkIndex 從 0 開始，對應 part number chunkIndex+1；同一 chunk 重傳會覆蓋
// @Tags Upload
// @Accept multipart/form-data
// @Produce json
// @Param chunk formData file true "chunk bytes"
// @Param chunkIndex formData int true "0-based chunk index"
// @Param totalChunks formData int false "total chunk count"
// @Param fileName formData string true "object key"
// @Param uploadId formData string true "upload id"
// @Success 200 {object} UploadPartRes
// @Failure 400 {object} ErrorRes
// @Failure 404 {object} ErrorRes
// @Failure 409 {object} ErrorRes
// @Failure 413 {object} ErrorRes
// @Router /upload [post]
func (h *UploadHandler) UploadPart(c *fiber.Ctx) error {
	chunkIndex, err := strconv.Atoi(c.FormValue("chunkIndex"))
	if err != nil || chunkIndex < 0 {
		return c.Status(http.StatusBadRequest).JSON(ErrorRes{Error: "chunkIndex must be a non-negative integer"})
	}
	totalChunks := 0
	if raw := c.FormValue("totalChunks"); raw != "" {
		if totalChunks, err = strconv.Atoi(raw); err != nil || totalChunks < 0 {
			return c.Status(http.StatusBadRequest).JSON(ErrorRes{Error: "totalChunks must be a non-negative integer"})
		}
	}

	fileHeader, err := c.FormFile("chunk")
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorRes{Error: "missing chunk"})
	}
	if h.maxChunkSize > 0 && fileHeader.Size > h.maxChunkSize {
		return c.Status(http.StatusRequestEntityTooLarge).JSON(ErrorRes{
			Error: fmt.Sprintf("chunk size %d exceeds limit %d", fileHeader.Size, h.maxChunkSize),
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Log.Errorf("Open chunk failed", err)
		return c.Status(http.StatusInternalServerError).JSON(ErrorRes{Error: "failed to open chunk"})
	}
	defer file.Close()

	etag, err := h.upload.UploadPart(c.UserContext(), app.UploadPartReq{
		UploadID:    c.FormValue("uploadId"),
		FileName:    c.FormValue("fileName"),
		PartNumber:  chunkIndex + 1,
		TotalChunks: totalChunks,
		Data:        file,
		Size:        fileHeader.Size,
	})
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(UploadPartRes{ETag: etag})
}

// Complete godoc
// @Summary Complete multipart upload
// @Description parts 必須是完整且無缺口的 1..N
// @Tags Upload
// @Accept json
// @Produce json
// @Param request body CompleteReq true "parts"
// @Success 200 {object} domain.CompletedUpload
// @Failure 400 {object} ErrorRes
// @Failure 404 {object} ErrorRes
// @Failure 409 {object} ErrorRes
// @Router /complete [post]
func (h *UploadHandler) Complete(c *fiber.Ctx) error {
	var req CompleteReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorRes{Error: "invalid request body"})
	}
	res, err := h.upload.Complete(c.UserContext(), req.UploadID, req.FileName, req.Parts)
	if err != nil {
		return sendError(c, err)
	}
	return c.JSON(res)
}

// Abort godoc
// @Summary Abort multipart upload
// @Tags Upload
// @Accept json
// @Param request body AbortReq true "upload id"
// @Success 204
// @Failure 400 {object} ErrorRes
// @Failure 404 {object} ErrorRes
// @Router /abort [post]
func (h *UploadHandler) Abort(c *fiber.Ctx) error {
	var req AbortReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(ErrorRes{Error: "invalid request body"})
	}
	if err := h.upload.Abort(c.UserContext(), req.UploadID); err != nil {
		return sendError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}
