// Package health exposes the standard gRPC health service for the monitor.
package health

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the name under which ingestion status is reported, next to the
// server-wide "" entry.
const Service = "gonm.Ingestion"

// Server serves grpc.health.v1.Health.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	log        logrus.FieldLogger
}

// NewServer creates a health server reporting NOT_SERVING until SetServing is called.
func NewServer(log logrus.FieldLogger) *Server {
	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     health.NewServer(),
		log:        log,
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.SetServing(false)
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.log.WithField("addr", lis.Addr().String()).Info("Health server starting")
	if err := s.grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("health server failed: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and serves in the background. Errors after
// the listener is open are logged.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	go func() {
		if err := s.Serve(lis); err != nil {
			s.log.WithError(err).Error("Health server stopped")
		}
	}()
	return nil
}

// SetServing updates both the server-wide and the ingestion status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
	s.log.WithField("status", status.String()).Debug("Health status changed")
}

// Stop marks everything NOT_SERVING and stops the gRPC server gracefully.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
