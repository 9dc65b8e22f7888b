package app

import (
	"net"

	"video_ingest_service/pkg/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// WorkerServiceName health check 使用的 service 名稱
const WorkerServiceName = "transcode_worker"

// HealthServer grpc.health.v1 health endpoint
type HealthServer struct {
	server *grpc.Server
	health *health.Server
}

// NewHealthServer 初始狀態為 NOT_SERVING，consumer 啟動後再設為 SERVING
func NewHealthServer() *HealthServer {
	h := &HealthServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	grpc_health_v1.RegisterHealthServer(h.server, h.health)
	h.SetServing(false)
	return h
}

// SetServing 同時更新整體與 worker service 的狀態
func (h *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(WorkerServiceName, status)
}

// Serve blocks until Stop
func (h *HealthServer) Serve(lis net.Listener) error {
	logger.Log.Info("gRPC health server listening", zap.String("addr", lis.Addr().String()))
	return h.server.Serve(lis)
}

// Stop 先標記 NOT_SERVING 再關閉
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
