package grpc

import (
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/ArsMedicaTech/fhir-sync/telemetry"
)

// defaultMaxMessageSizeMB caps a single RPC frame when the config does
// not say otherwise. Change-sets batch whole patient records, so the
// cap is generous.
const defaultMaxMessageSizeMB = 16

// Server hosts the FhirSync service plus the standard health service,
// with pprof and Prometheus metrics multiplexed on the same port.
type Server struct {
	address string
	port    int
	maxMB   int

	service  FhirSyncServer
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	mux      cmux.CMux
}

// ServerConfig holds configuration for the gRPC server
type ServerConfig struct {
	Address          string
	Port             int
	MaxMessageSizeMB int
}

// NewServer creates a new gRPC server around the service implementation
func NewServer(config ServerConfig, service FhirSyncServer) *Server {
	maxMB := config.MaxMessageSizeMB
	if maxMB <= 0 {
		maxMB = defaultMaxMessageSizeMB
	}
	return &Server{
		address: config.Address,
		port:    config.Port,
		maxMB:   maxMB,
		service: service,
	}
}

// Start starts the gRPC server and the HTTP side-channel on one port
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.address, s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	maxBytes := s.maxMB * 1024 * 1024
	s.listener = listener
	s.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(maxBytes),
		grpc.MaxSendMsgSize(maxBytes),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second, // Minimum time between client pings
			PermitWithoutStream: true,            // Allow pings even when no streams
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    60 * time.Second, // Ping client if no activity for 60s
			Timeout: 10 * time.Second, // Wait 10s for ping ack before closing connection
		}),
	)

	// Register services
	RegisterFhirSyncServer(s.server, s.service)

	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Enable reflection for debugging
	reflection.Register(s.server)

	log.Info().
		Str("address", addr).
		Msg("Starting gRPC server")

	// Multiplex HTTP (pprof + metrics) and gRPC on the same port
	s.mux = cmux.New(listener)
	httpListener := s.mux.Match(cmux.HTTP1Fast())
	grpcListener := s.mux.Match(cmux.Any())

	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/debug/pprof/", pprof.Index)
	httpMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	httpMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	httpMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	httpMux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	if metricsHandler := telemetry.GetMetricsHandler(); metricsHandler != nil {
		httpMux.Handle("/metrics", metricsHandler)
		log.Info().Msg("Metrics endpoint enabled at /metrics")
	}

	httpServer := &http.Server{
		Handler: httpMux,
	}

	go func() {
		if err := httpServer.Serve(httpListener); err != nil && err != cmux.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP side-channel failed")
		}
	}()

	go func() {
		if err := s.server.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	go func() {
		if err := s.mux.Serve(); err != nil {
			log.Debug().Err(err).Msg("cmux serve returned")
		}
	}()

	return nil
}

// Stop gracefully stops the gRPC server
func (s *Server) Stop() {
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.server != nil {
		log.Info().Msg("Stopping gRPC server")
		s.server.GracefulStop()
	}
	if s.mux != nil {
		s.mux.Close()
	}
}
