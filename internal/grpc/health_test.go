package grpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

type togglePinger struct {
	down atomic.Bool
}

func (p *togglePinger) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestHealthProbeFollowsStore(t *testing.T) {
	server, addr := startServer(t)
	pinger := &togglePinger{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartHealthProbe(ctx, server, pinger, 20*time.Millisecond)

	client := dial(t, addr)
	waitForStatus(t, client, ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	waitForStatus(t, client, "", grpc_health_v1.HealthCheckResponse_SERVING)

	pinger.down.Store(true)
	waitForStatus(t, client, ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	pinger.down.Store(false)
	waitForStatus(t, client, ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
}

func TestNewHealthServerStartsNotServing(t *testing.T) {
	_, addr := startServer(t)
	client := dial(t, addr)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %s", resp.GetStatus())
	}
}

func startServer(t *testing.T) (*HealthServer, string) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	server := NewHealthServer(nil)
	done := make(chan struct{})
	go func() {
		_ = server.Serve(listener)
		close(done)
	}()
	t.Cleanup(func() {
		server.Stop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})
	return server, listener.Addr().String()
}

func dial(t *testing.T, addr string) grpc_health_v1.HealthClient {
	t.Helper()
	conn, err := gogrpc.Dial(addr, gogrpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return grpc_health_v1.NewHealthClient(conn)
}

func waitForStatus(t *testing.T, client grpc_health_v1.HealthClient, service string, want grpc_health_v1.HealthCheckResponse_ServingStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && resp.GetStatus() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("service %q never reached %s", service, want)
}
