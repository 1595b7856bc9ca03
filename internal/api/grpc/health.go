// Package grpc serves the standard gRPC health protocol for the ledger.
package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"cashback-ledger/internal/logger"
)

// ServiceName is the health service name reported next to the overall "" status.
const ServiceName = "cashback.Ledger"

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer tracks the database and flips the serving status to match.
type HealthServer struct {
	health   *health.Server
	db       Pinger
	interval time.Duration
}

func NewHealthServer(db Pinger, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h := &HealthServer{health: health.NewServer(), db: db, interval: interval}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// NewServer builds a grpc.Server with health and reflection registered.
func (h *HealthServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.health)
	// Register reflection service for grpcurl
	reflection.Register(s)
	return s
}

func (h *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}

// Check pings the database once and updates the status.
func (h *HealthServer) Check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		logger.Warn("Database ping failed, reporting NOT_SERVING", "error", err)
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
}

// Run checks the database every interval until ctx ends, then marks the
// server as shutting down.
func (h *HealthServer) Run(ctx context.Context) {
	h.Check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}
