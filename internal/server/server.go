// Package server orchestration: listener setup, the accept loop, and
// graceful shutdown for the chatwire relay.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tyrowin/chatwire/internal/store"
)

// Server accepts TCP connections, drives each through the auth handshake,
// and runs the paired per-connection loops. An optional HTTP listener
// exposes the WebSocket gateway, health, and metrics endpoints.
type Server struct {
	cfg      Config
	creds    store.CredentialStore
	registry *Registry
	hub      *Hub
	metrics  *Metrics
	promReg  *prometheus.Registry
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	listener     net.Listener
	httpServer   *http.Server
	httpListener net.Listener

	upgrader        websocket.Upgrader
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
}

// New assembles a relay from its collaborators. history may be nil to run
// without persistence.
func New(cfg Config, creds store.CredentialStore, history store.HistoryStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.sanitized()

	promReg := prometheus.NewRegistry()
	metrics := NewMetrics(promReg)
	registry := NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		creds:    creds,
		registry: registry,
		hub:      NewHub(registry, history, metrics, logger),
		metrics:  metrics,
		promReg:  promReg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Hub exposes the broadcast engine, mainly for the gateway bridge and
// tests.
func (s *Server) Hub() *Hub { return s.hub }

// Registry exposes the session registry.
func (s *Server) Registry() *Registry { return s.registry }

// Start binds the configured listeners and begins accepting connections.
// It returns once listening; use Shutdown to stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.logger.Info("listening for chat connections", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(ln)

	if s.cfg.HTTPAddr != "" {
		if err := s.startGateway(); err != nil {
			_ = ln.Close()
			return err
		}
	}
	return nil
}

// Addr returns the bound TCP address, useful when Addr was configured with
// port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// GatewayAddr returns the bound HTTP address, or nil when the gateway is
// disabled.
func (s *Server) GatewayAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go s.handleConn(nc)
	}
}

// Shutdown stops accepting, force-closes every session, and waits for all
// connection goroutines to finish or for the configured timeout to elapse.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down relay")
	s.cancel()

	s.mu.Lock()
	ln := s.listener
	httpSrv := s.httpServer
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	if httpSrv != nil {
		ctx, cancelHTTP := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		if err := httpSrv.Shutdown(ctx); err != nil {
			s.logger.Warn("gateway shutdown error", "error", err)
		}
		cancelHTTP()
	}

	// Closing each session's socket unblocks both of its loops so they can
	// deregister and exit.
	for _, sess := range s.registry.Snapshot() {
		s.teardown(sess)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("relay shutdown complete")
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
		s.logger.Warn("shutdown timeout reached; goroutines may still be running")
		return context.DeadlineExceeded
	}
}
