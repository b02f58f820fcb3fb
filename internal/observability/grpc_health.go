package observability

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealth serves the standard grpc.health.v1.Health service so that
// orchestrators probing over gRPC see the same readiness as /ready.
type GRPCHealth struct {
	server   *grpc.Server
	health   *health.Server
	checks   []HealthCheck
	interval time.Duration
	logger   zerolog.Logger
}

// NewGRPCHealth creates the health server; checks are re-evaluated every interval
func NewGRPCHealth(interval time.Duration, checks ...HealthCheck) *GRPCHealth {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &GRPCHealth{
		server:   srv,
		health:   hs,
		checks:   checks,
		interval: interval,
		logger:   ForComponent("grpc_health"),
	}
}

// Refresh runs the checks once and publishes the aggregate serving status
func (g *GRPCHealth) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	_, ok := RunChecks(ctx, g.checks)
	status := healthpb.HealthCheckResponse_SERVING
	if !ok {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
	return status
}

// Serve listens on addr and blocks until Stop or ctx is done
func (g *GRPCHealth) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return g.ServeListener(ctx, lis)
}

// ServeListener serves on an existing listener
func (g *GRPCHealth) ServeListener(ctx context.Context, lis net.Listener) error {
	g.Refresh(ctx)

	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				g.Stop()
				return
			case <-ticker.C:
				if g.Refresh(ctx) != healthpb.HealthCheckResponse_SERVING {
					g.logger.Warn().Msg("Dependency checks failing, reporting NOT_SERVING")
				}
			}
		}
	}()

	g.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health service listening")
	if err := g.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc health server: %w", err)
	}
	return nil
}

// Stop marks the service as not serving and stops the gRPC server
func (g *GRPCHealth) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
