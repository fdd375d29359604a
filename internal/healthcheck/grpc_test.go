package healthcheck

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func status(t *testing.T, s *Server) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: Service})
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	return resp.GetStatus()
}

func TestCheck_FollowsProbe(t *testing.T) {
	var probeErr error
	s := NewServer(func() error { return probeErr }, quietLogger())

	if got := status(t, s); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING before the first probe, got %v", got)
	}
	if !s.Check() || status(t, s) != healthpb.HealthCheckResponse_SERVING {
		t.Error("expected SERVING after a passing probe")
	}

	probeErr = errors.New("database down")
	if s.Check() || status(t, s) != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Error("expected NOT_SERVING after a failing probe")
	}
}

func TestServeListener_AnswersOverGRPC(t *testing.T) {
	s := NewServer(func() error { return nil }, quietLogger())
	s.Check()

	lis := bufconn.Listen(1 << 20)
	go s.ServeListener(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %v", resp.GetStatus())
	}
}
