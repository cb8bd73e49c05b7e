package server

import (
	"context"
	"errors"
	"net"
	"time"

	grpcTransport "github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/grpc"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/grpc/middleware"
	"github.com/Miraines/MoonyAndStarry/chat-auth/internal/adapters/transport/ratelimit"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const shutdownTimeout = 5 * time.Second

// NewGRPCServer собирает сервер с middleware, introspection, health и метриками.
func NewGRPCServer(handler grpcTransport.IntrospectionServer, limiter *ratelimit.PerKey, logger *zap.Logger) (*grpc.Server, *health.Server) {
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(middleware.ChainUnaryServer(logger, limiter)),
	)

	grpcTransport.RegisterIntrospectionServer(grpcServer, handler)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(grpcTransport.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)

	grpc_prometheus.Register(grpcServer)
	grpc_prometheus.EnableHandlingTimeHistogram()
	reflection.Register(grpcServer)
	return grpcServer, hs
}

// ServeGRPC обслуживает lis до отмены ctx, затем делает graceful stop с таймаутом.
func ServeGRPC(ctx context.Context, lis net.Listener, grpcServer *grpc.Server, hs *health.Server, logger *zap.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info("ctx cancelled, stopping gRPC server…")
	hs.Shutdown()

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-time.After(shutdownTimeout):
		grpcServer.Stop()
	case <-done:
	}
	logger.Info("gRPC server stopped")
	return nil
}

func StartGRPCServer(ctx context.Context, addr string, handler grpcTransport.IntrospectionServer, limiter *ratelimit.PerKey, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	grpcServer, hs := NewGRPCServer(handler, limiter, logger)
	return ServeGRPC(ctx, lis, grpcServer, hs, logger)
}
