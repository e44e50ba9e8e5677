// Package server exposes the bridge over HTTP: signaling events, audio
// ingress (multipart and WebSocket), a call listing, health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Raikerian/go-sip-realtime-bridge/internal/bridge"
	"github.com/Raikerian/go-sip-realtime-bridge/internal/config"
)

// CallRegistry is the part of the bridge registry the HTTP surface drives.
type CallRegistry interface {
	StartCall(callID string, dest *net.UDPAddr) (bridge.StartStatus, error)
	ForwardAudio(ctx context.Context, callID string, chunk []byte) bridge.ForwardStatus
	EndCall(ctx context.Context, callID string) bridge.EndStatus
	ActiveCalls() []string
}

// Server is the HTTP ingress for the bridge.
type Server struct {
	cfg      config.ServerConfig
	registry CallRegistry
	gatherer prometheus.Gatherer
	logger   *zap.Logger

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	served   chan struct{}
}

// NewServer creates a server. A nil gatherer disables /metrics.
func NewServer(cfg config.ServerConfig, registry CallRegistry, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sip_event", s.handleSignaling)
	mux.HandleFunc("POST /audio", s.handleAudio)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /calls", s.handleCalls)
	mux.HandleFunc("GET /{$}", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start binds the listen address and serves in the background.
func (s *Server) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.http != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}

	s.listener = ln
	s.served = make(chan struct{})
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ErrorLog:          zap.NewStdLog(s.logger.Named("http")),
	}

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}(s.http, s.served)

	s.logger.Info("HTTP server listening", zap.Stringer("addr", ln.Addr()))
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops accepting requests and waits for in-flight ones to finish.
// WebSocket connections are hijacked and end with their calls.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, served := s.http, s.served
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	select {
	case <-served:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
