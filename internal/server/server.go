// Package server exposes the dashboard over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/cryptodash/internal/domain"
	"github.com/alanyoungcy/cryptodash/internal/server/handler"
	"github.com/alanyoungcy/cryptodash/internal/server/middleware"
	"github.com/alanyoungcy/cryptodash/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // guards POST /api/refresh; empty disables
	// Refresh rate limiting applies only when a limiter is supplied.
	RefreshRateLimit  int
	RefreshRateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Dashboard *handler.DashboardHandler
	Assets    *handler.AssetHandler
	Refresh   *handler.RefreshHandler
	Status    *handler.StatusHandler
	Health    *handler.HealthHandler
}

// Server is the dashboard's HTTP + WebSocket server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the logging and CORS
// middleware. limiter and wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	limited := func(scope string, h http.HandlerFunc) http.Handler {
		return middleware.RateLimit(limiter, scope, cfg.RefreshRateLimit, cfg.RefreshRateWindow, logger)(h)
	}

	// Browser routes.
	mux.HandleFunc("GET /{$}", handlers.Dashboard.Page)
	mux.HandleFunc("GET /grid", handlers.Dashboard.Grid)
	mux.Handle("POST /refresh", limited("refresh", handlers.Dashboard.Refresh))

	// JSON API.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/assets", handlers.Assets.ListAssets)
	mux.HandleFunc("GET /api/assets/{id}", handlers.Assets.GetAsset)
	mux.HandleFunc("GET /api/assets/{id}/history", handlers.Assets.GetHistory)
	mux.Handle("POST /api/refresh", middleware.APIKey(cfg.APIKey)(limited("api_refresh", handlers.Refresh.Refresh)))

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
