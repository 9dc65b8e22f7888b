package testtool

import (
	"context"
	"log"
	"net"
	"strings"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"google.golang.org/grpc"
)

// SetupContainer 通用函式來啟動測試容器，回傳第一個 exposed port 的 host:port
func SetupContainer(ctx context.Context, req testcontainers.ContainerRequest) (testcontainers.Container, string, string, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", "", err
	}

	// 轉換 ExposedPorts[0] 為 nat.Port
	natPort, err := nat.NewPort("tcp", strings.TrimSuffix(req.ExposedPorts[0], "/tcp"))
	if err != nil {
		return nil, "", "", err
	}

	port, err := container.MappedPort(ctx, natPort)
	if err != nil {
		return nil, "", "", err
	}

	return container, host, port.Port(), nil
}

// StartGRPCServer 在隨機 port 啟動 grpc server，register 負責註冊服務
func StartGRPCServer(register func(*grpc.Server)) (*grpc.Server, string) {
	listener, err := net.Listen("tcp", "127.0.0.1:0") // 隨機取得可用 Port
	if err != nil {
		log.Fatalf("❌ Failed to start gRPC listener: %v", err)
	}

	grpcServer := grpc.NewServer()
	register(grpcServer)

	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			log.Printf("gRPC test server stopped: %v", err)
		}
	}()

	return grpcServer, listener.Addr().String()
}
