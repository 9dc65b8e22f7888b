package router

import (
	"video_ingest_service/internal/ingest/api/handlers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 註冊 upload 與 job 相關的路由
// @title Video Ingest Service API
// @version 1.0
// @description Multipart upload and transcode job submission
// @host localhost:8080
// @BasePath /
func RegisterRoutes(app *fiber.App, uploadHandler *handlers.UploadHandler, jobHandler *handlers.JobHandler) {
	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/", handlers.ConnectCheck)
	app.Post("/debug", handlers.DebugLogFlag)

	app.Post("/initiate", uploadHandler.Initiate)
	app.Post("/upload", uploadHandler.UploadPart)
	app.Post("/complete", uploadHandler.Complete)
	app.Post("/abort", uploadHandler.Abort)

	app.Post("/send", jobHandler.Send)
	jobRoutes := app.Group("/jobs")
	jobRoutes.Get("/:id", jobHandler.GetJob)
	jobRoutes.Use("/:id/events", handlers.RequireUpgrade)
	jobRoutes.Get("/:id/events", websocket.New(jobHandler.Events))
}
