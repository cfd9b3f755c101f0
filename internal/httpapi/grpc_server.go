package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"ndjobi.org/internal/obs"
)

// GRPCServer exposes the standard gRPC health service. The overall status and the
// ndjobi-api service status both follow the readiness probe.
type GRPCServer struct {
	health    *health.Server
	readiness readinessChecker
	version   string
}

// NewGRPCServer creates the health wrapper. A nil checker always reports serving.
func NewGRPCServer(r readinessChecker, version string) *GRPCServer {
	if r == nil {
		r = ReadyProbe{}
	}
	return &GRPCServer{
		health:    health.NewServer(),
		readiness: r,
		version:   version,
	}
}

// Register attaches the health service to srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Refresh runs the readiness probe once and publishes the result.
func (s *GRPCServer) Refresh(ctx context.Context) bool {
	status := healthpb.HealthCheckResponse_SERVING
	err := s.readiness.Check(ctx)
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(serviceName, status)
	obs.SetReady(err == nil)
	return err == nil
}

// Watch refreshes the status every interval until ctx is done.
func (s *GRPCServer) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Shutdown flips every service to NOT_SERVING so clients drain before the server stops.
func (s *GRPCServer) Shutdown() {
	s.health.Shutdown()
	obs.Info("grpc health shutdown", map[string]any{"service": serviceName, "version": s.version})
}
