package server

import (
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// HealthServiceName is the service name reported by the gRPC health server
// alongside the overall ("") status.
const HealthServiceName = "kubilitics.vitals"

type grpcServer struct {
	server       *grpc.Server
	healthServer *health.Server
	logger       *zap.Logger
}

func newGRPCServer(logger *zap.Logger) *grpcServer {
	s := grpc.NewServer(
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.ConnectionTimeout(30*time.Second),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(s)

	return &grpcServer{server: s, healthServer: healthServer, logger: logger}
}

// Serve blocks until the listener fails or Stop is called.
func (g *grpcServer) Serve(lis net.Listener) {
	if err := g.server.Serve(lis); err != nil {
		g.logger.Error("gRPC server failed", zap.Error(err))
	}
}

// Stop marks the services NOT_SERVING and stops gracefully, forcing after 5s.
func (g *grpcServer) Stop() {
	g.healthServer.Shutdown()

	stopped := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		g.logger.Info("gRPC server stopped gracefully")
	case <-time.After(5 * time.Second):
		g.logger.Warn("gRPC server forced to stop after timeout")
		g.server.Stop()
	}
}
