package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ashureev/supervisor/internal/domain"
)

// GRPCHealth exposes the supervised service's health through the standard
// gRPC health protocol. The overall ("") status reflects the supervisor
// itself and stays SERVING until shutdown.
type GRPCHealth struct {
	service string
	health  *health.Server
	server  *grpc.Server
}

// NewGRPCHealth creates a health server that reports service as SERVING
// until the watchdog says otherwise.
func NewGRPCHealth(service string) *GRPCHealth {
	hs := health.NewServer()
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &GRPCHealth{service: service, health: hs, server: srv}
}

// Notify implements watchdog.Notifier.
func (g *GRPCHealth) Notify(_ context.Context, t domain.HealthTransition) {
	switch t.Kind {
	case domain.TransitionDown:
		g.health.SetServingStatus(g.service, healthpb.HealthCheckResponse_NOT_SERVING)
	case domain.TransitionRecovered:
		g.health.SetServingStatus(g.service, healthpb.HealthCheckResponse_SERVING)
	}
}

// Serve listens on addr until ctx is cancelled.
func (g *GRPCHealth) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return g.ServeListener(ctx, lis)
}

// ServeListener serves on lis until ctx is cancelled.
func (g *GRPCHealth) ServeListener(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		g.health.Shutdown()
		g.server.GracefulStop()
	}()
	slog.Info("gRPC health server listening", "addr", lis.Addr().String(), "service", g.service)
	if err := g.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}
