package healthcheck

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name reported for the analysis API
const Service = "wristsight.AnalysisAPI"

// Server exposes the standard gRPC health service. The status follows a probe run on an interval.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	probe      func() error
	logger     *logrus.Logger
}

// NewServer creates the health server; every service starts NOT_SERVING until the first probe passes
func NewServer(probe func() error, logger *logrus.Logger) *Server {
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	s := &Server{
		grpcServer: grpcServer,
		health:     hs,
		probe:      probe,
		logger:     logger,
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Serve listens on addr until Stop is called
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.logger.Infof("gRPC health service listening on %s", addr)
	return s.ServeListener(lis)
}

// ServeListener serves on an existing listener
func (s *Server) ServeListener(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Check runs the probe once and publishes the result
func (s *Server) Check() bool {
	if err := s.probe(); err != nil {
		s.logger.Warnf("Health probe failed: %v", err)
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	s.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Run probes on every tick until ctx is done
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.Check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check()
		}
	}
}

// Stop marks everything NOT_SERVING and stops the gRPC server gracefully
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
}
