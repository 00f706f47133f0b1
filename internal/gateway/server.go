// Package gateway exposes the engine over HTTP and WebSocket: session and
// turn endpoints, audit access, and a progress stream for bulk jobs.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shopclerk/shopclerk/internal/agent"
	"github.com/shopclerk/shopclerk/internal/bulk"
	"github.com/shopclerk/shopclerk/internal/config"
	"github.com/shopclerk/shopclerk/internal/domain"
	"github.com/shopclerk/shopclerk/internal/hooks"
	"github.com/shopclerk/shopclerk/internal/logging"
	"github.com/shopclerk/shopclerk/internal/store"
	"github.com/shopclerk/shopclerk/internal/version"
)

// Server is the gateway HTTP + WebSocket server.
type Server struct {
	cfg   config.GatewayConfig
	orch  *agent.Orchestrator
	proc  *bulk.Processor
	audit store.AuditStore
	hooks *hooks.Manager
	log   *logging.Logger

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
	hub        *progressHub
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// New creates a gateway server.
func New(cfg config.GatewayConfig, orch *agent.Orchestrator, proc *bulk.Processor, audit store.AuditStore, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:   cfg,
		orch:  orch,
		proc:  proc,
		audit: audit,
		log:   log.Sub("gateway"),
		hub:   newProgressHub(log.Sub("gateway.progress")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	// fan bulk progress out to connected websocket clients
	proc.OnProgress(func(p domain.BulkProgress) {
		s.hub.broadcast(p)
		if s.hooks != nil {
			s.hooks.Emit(context.Background(), hooks.EventBulkProgress, map[string]any{
				"jobId":     p.JobID,
				"processed": p.ProcessedItems,
				"total":     p.TotalItems,
			})
		}
	})
	return s
}

// checkWebSocketOrigin validates WebSocket Origin headers. Absent Origin
// (non-browser clients) is allowed; a present Origin must match the allowed
// list.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start begins listening. It blocks until the context is cancelled or an
// error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := withMiddleware(mux, s.log, s.cfg.AllowedOrigins, s.cfg.AuthToken)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Bool("auth", s.cfg.AuthToken != "").
		Msg("gateway server starting")

	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": ln.Addr().String()})
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		if s.hooks != nil {
			s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.closeAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

// handleWebSocket upgrades to WebSocket and streams bulk progress events.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(64 * 1024)

	s.hub.add(conn)
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("progress subscriber connected")

	// drain until the client disconnects; subscribers only listen
	defer func() {
		s.hub.remove(conn)
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// uptime reports the seconds since Start.
func (s *Server) uptime() float64 {
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt).Seconds()
}

// serverVersion is surfaced on the health endpoint.
func serverVersion() string {
	return version.Version
}
