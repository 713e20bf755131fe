// Package grpc exposes the standard gRPC health service for the profiles
// backend and keeps its status in step with the database.
package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall "" status.
const ServiceName = "studyhub.profiles.v1.ProfileService"

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthServer struct {
	grpc   *gogrpc.Server
	health *health.Server
	logger *slog.Logger
}

func NewHealthServer(logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	grpcServer := gogrpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{grpc: grpcServer, health: healthServer, logger: logger}
}

// Serve blocks until the listener fails or Stop is called.
func (s *HealthServer) Serve(listener net.Listener) error {
	return s.grpc.Serve(listener)
}

func (s *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// StartHealthProbe pings the store every interval and flips the serving
// status on transitions. The first probe runs immediately.
func StartHealthProbe(ctx context.Context, server *HealthServer, store Pinger, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		serving := false
		probe := func() {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := store.Ping(pingCtx)
			cancel()
			healthy := err == nil
			if healthy != serving {
				if healthy {
					server.logger.Info("database reachable, serving")
				} else {
					server.logger.Warn("database unreachable, not serving", slog.String("error", err.Error()))
				}
			}
			serving = healthy
			server.SetServing(healthy)
		}

		probe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}
