package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/net/netutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"deepwell-rpc/api"
	"deepwell-rpc/apps/server/internal/logging"
)

// MaxConnections caps concurrently open client connections.
const MaxConnections = 16

// Server hosts the deepwell gRPC service and the standard health service.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
	log        zerolog.Logger
}

// Listen opens a TCP listener on addr and builds a server on it.
func Listen(addr string, svc api.DeepwellServer, log zerolog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return NewServer(lis, svc, log), nil
}

// NewServer serves svc on lis.
func NewServer(lis net.Listener, svc api.DeepwellServer, log zerolog.Logger) *Server {
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()

	api.RegisterDeepwellServer(grpcServer, svc)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(api.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:   netutil.LimitListener(lis, MaxConnections),
		grpcServer: grpcServer,
		health:     healthServer,
		log:        logging.Component(log, "rpc"),
	}
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve blocks until the server stops or ctx ends, then stops gracefully.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info().Str("address", s.Addr()).Msg("gRPC server listening")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("gRPC server stopping")
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		return handleServeErr(<-serveErr)
	case err := <-serveErr:
		return handleServeErr(err)
	}
}

func handleServeErr(err error) error {
	if err == nil || errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return fmt.Errorf("serve gRPC: %w", err)
}
