// Package grpc serves the conduit gRPC surface. The standard health
// service is the only registered service; Kubernetes probes and load
// balancers consume it, and domain RPCs can be registered alongside it.
package grpc

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// serviceName is reported per-service in addition to the server-wide
// health status.
const serviceName = "conduit"

// Server wraps a grpc.Server with lifecycle-aware health reporting.
type Server struct {
	srv      *grpc.Server
	listener net.Listener
	health   *health.Server
	logger   *zap.Logger
}

// Config holds gRPC server configuration.
type Config struct {
	Port   int
	Logger *zap.Logger
}

// NewServer builds the server and binds its listener. Health status starts
// as NOT_SERVING until Start flips it.
func NewServer(cfg *Config) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("binding grpc listener: %w", err)
	}

	s := &Server{
		srv:      grpc.NewServer(),
		listener: ln,
		health:   health.NewServer(),
		logger:   cfg.Logger,
	}
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s, nil
}

// Start marks the server healthy and serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("grpc server listening", zap.String("addr", s.listener.Addr().String()))
	s.setStatus(healthpb.HealthCheckResponse_SERVING)

	if err := s.srv.Serve(s.listener); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Shutdown flips health to NOT_SERVING, then drains in-flight RPCs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)

	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.srv.Stop()
	}

	s.logger.Info("grpc server stopped")
	return nil
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(serviceName, st)
}
