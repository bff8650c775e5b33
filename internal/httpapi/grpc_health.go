package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"horizon.shop/internal/obs"
)

// HealthService mirrors HTTP readiness onto the standard gRPC health service.
type HealthService struct {
	server    *health.Server
	readiness Readiness
	interval  time.Duration
}

// NewHealthService creates the service; call Run to keep it current.
func NewHealthService(r Readiness, interval time.Duration) *HealthService {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s := &HealthService{server: health.NewServer(), readiness: r, interval: interval}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Server is registered with grpc.Server via healthpb.RegisterHealthServer.
func (s *HealthService) Server() healthpb.HealthServer { return s.server }

// Check probes readiness once and publishes the result.
func (s *HealthService) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.readiness != nil {
		cctx, cancel := context.WithTimeout(ctx, s.interval)
		err := s.readiness.Ping(cctx)
		cancel()
		if err != nil {
			obs.Logger().WithError(err).Warn("grpc_health_not_serving")
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.set(status)
	return status
}

// Run re-checks until ctx ends, then marks the service as shutting down.
func (s *HealthService) Run(ctx context.Context) {
	s.Check(ctx)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.server.Shutdown()
			return
		case <-t.C:
			s.Check(ctx)
		}
	}
}

func (s *HealthService) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.server.SetServingStatus("", status)
	s.server.SetServingStatus(serviceName, status)
}
