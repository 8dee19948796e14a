package admin

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name reported on the gRPC health endpoint in
// addition to the overall "" service.
const HealthService = "monitord"

// GRPCHealth serves the standard gRPC health protocol and mirrors a health
// check into it.
type GRPCHealth struct {
	server *grpc.Server
	health *health.Server
}

func NewGRPCHealth() *GRPCHealth {
	srv := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(srv, h)
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPCHealth{server: srv, health: h}
}

// Set updates the serving status of both services.
func (g *GRPCHealth) Set(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(HealthService, status)
}

// Track polls healthy every interval until ctx is done.
func (g *GRPCHealth) Track(ctx context.Context, interval time.Duration, healthy func() bool) {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		g.Set(healthy())
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (g *GRPCHealth) Serve(ln net.Listener) error {
	return g.server.Serve(ln)
}

// Stop marks the services as not serving and stops the server gracefully.
func (g *GRPCHealth) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
