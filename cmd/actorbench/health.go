package main

import (
	"log/slog"
	"net"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// healthService 是健康检查中登记的服务名。
const healthService = "actorfw.Framework"

// healthServer 通过 gRPC 健康检查协议报告 Framework 是否在运行。
type healthServer struct {
	server *grpc.Server
	health *health.Server
	addr   net.Addr
}

// startHealth 在 addr 上启动健康检查服务，初始状态为 SERVING。
func startHealth(addr string, log *slog.Logger) (*healthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "health listen %s", addr)
	}
	h := &healthServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
		addr:   lis.Addr(),
	}
	healthpb.RegisterHealthServer(h.server, h.health)
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.health.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)

	go func() {
		if err := h.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("health server stopped", "err", err)
		}
	}()
	log.Info("health enabled", "addr", h.addr.String())
	return h, nil
}

// markDown 把所有服务置为 NOT_SERVING。
func (h *healthServer) markDown() {
	if h == nil {
		return
	}
	h.health.Shutdown()
}

// stop 关闭 gRPC 服务。
func (h *healthServer) stop() {
	if h == nil {
		return
	}
	h.server.GracefulStop()
}
