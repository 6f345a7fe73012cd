package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Server exposes a Recorder at /metrics while a command runs.
type Server struct {
	logger   zerolog.Logger
	server   *http.Server
	listener net.Listener
}

func NewServer(logger zerolog.Logger, addr string, r *Recorder) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	return &Server{
		logger: logger.With().Str("component", "metrics_server").Logger(),
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start binds the address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to address %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		switch err := s.server.Serve(ln); err {
		case nil, http.ErrServerClosed:
			s.logger.Debug().Msg("metrics server closed")
		default:
			s.logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return nil
}

// Addr is the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
