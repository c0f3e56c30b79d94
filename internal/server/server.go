// Package server assembles the HTTP API: the route table, the middleware
// chain and the WebSocket hub.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/server/handler"
	"github.com/alanyoungcy/signalguard/internal/server/middleware"
	"github.com/alanyoungcy/signalguard/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Limiter throttles the webhook per client IP. Nil disables the limit.
	Limiter          domain.RateLimiter
	WebhookPerMinute int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Archive and Jobs are optional.
type Handlers struct {
	Health     *handler.HealthHandler
	Status     *handler.StatusHandler
	Webhook    *handler.WebhookHandler
	Positions  *handler.PositionHandler
	Stats      *handler.StatsHandler
	Accounts   *handler.AccountHandler
	Cooldowns  *handler.CooldownHandler
	Slippage   *handler.SlippageHandler
	Panic      *handler.PanicHandler
	Heartbeat  *handler.HeartbeatHandler
	Feed       *handler.FeedHandler
	Audit      *handler.AuditHandler
	SignalFeed *handler.SignalFeedHandler
	Archive    *handler.ArchiveHandler
	Jobs       *handler.PipelineHandler
}

// publicPaths bypass API-key auth. The webhook authenticates with its own
// shared secret.
var publicPaths = []string{"/api/webhook", "/api/health", "/metrics"}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, auth) and attaches the WebSocket hub
// when one is given.
func NewServer(cfg Config, h Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewRouter(cfg, h, wsHub, logger),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// NewRouter builds the full handler chain.
func NewRouter(cfg Config, h Handlers, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Signal intake.
	webhook := middleware.RateLimit(cfg.Limiter, "webhook", cfg.WebhookPerMinute, time.Minute, logger)(
		http.HandlerFunc(h.Webhook.Receive),
	)
	mux.Handle("POST /api/webhook", webhook)
	mux.HandleFunc("GET /api/signals", h.Webhook.ListSignals)
	mux.HandleFunc("GET /api/signals/live", h.SignalFeed.Live)

	// Positions and accounts.
	mux.HandleFunc("GET /api/positions", h.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/{id}", h.Positions.GetPosition)
	mux.HandleFunc("GET /api/stats/{account}", h.Stats.GetStats)
	mux.HandleFunc("GET /api/accounts", h.Accounts.ListAccounts)
	mux.HandleFunc("POST /api/accounts/{id}/arm", h.Accounts.Arm)
	mux.HandleFunc("POST /api/accounts/{id}/auto-entry", h.Accounts.SetAutoEntry)

	// Guards.
	mux.HandleFunc("GET /api/cooldowns", h.Cooldowns.ListActive)
	mux.HandleFunc("POST /api/cooldowns", h.Cooldowns.Activate)
	mux.HandleFunc("GET /api/cooldowns/{ticker}", h.Cooldowns.Status)
	mux.HandleFunc("DELETE /api/cooldowns/{ticker}", h.Cooldowns.Deactivate)
	mux.HandleFunc("GET /api/slippage/stats", h.Slippage.Stats)
	mux.HandleFunc("GET /api/slippage/events", h.Slippage.Events)
	mux.HandleFunc("GET /api/slippage/quality/{ticker}", h.Slippage.Quality)
	mux.HandleFunc("POST /api/panic/disable-all", h.Panic.DisableAll)
	mux.HandleFunc("POST /api/panic/{account}", h.Panic.KillSwitch)
	mux.HandleFunc("GET /api/panic/history", h.Panic.History)
	mux.HandleFunc("GET /api/heartbeat", h.Heartbeat.Status)
	mux.HandleFunc("POST /api/heartbeat/ping", h.Heartbeat.Ping)
	mux.HandleFunc("GET /api/audit", h.Audit.List)

	// Market data.
	mux.HandleFunc("GET /api/prices", h.Feed.Prices)
	mux.HandleFunc("GET /api/feed/status", h.Feed.Status)

	if h.Archive != nil {
		mux.HandleFunc("GET /api/archive", h.Archive.List)
		mux.HandleFunc("GET /api/archive/object", h.Archive.Object)
	}
	if h.Jobs != nil {
		mux.HandleFunc("POST /api/jobs/{name}/run", h.Jobs.TriggerJob)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Auth runs innermost so CORS preflights and logging see every request.
	var chain http.Handler = mux
	chain = middleware.Auth(cfg.APIKey, publicPaths...)(chain)
	chain = middleware.Logging(logger)(chain)
	if len(cfg.CORSOrigins) > 0 {
		chain = middleware.CORS(cfg.CORSOrigins)(chain)
	}
	return chain
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until the server is shut down.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
