// Package api exposes the monitoring daemon over HTTP: health and metrics
// endpoints, the recent-error query surface, on-demand analysis, and a
// websocket feed for dashboards.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/errwatchd/internal/analysis"
	"github.com/fyrsmithlabs/errwatchd/internal/errstore"
	"github.com/fyrsmithlabs/errwatchd/internal/orchestrator"
	"github.com/fyrsmithlabs/errwatchd/internal/watcher"
)

// MetricsSource supplies the pipeline metrics snapshot.
type MetricsSource interface {
	Snapshot() orchestrator.Snapshot
}

// WatcherStatus supplies the log watcher's health view.
type WatcherStatus interface {
	Status() watcher.Status
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Deps are the server's collaborators. Store and Metrics are required;
// Analyzer and FixGenerator back the on-demand endpoints and may be nil,
// in which case those endpoints report 503.
type Deps struct {
	Store        *errstore.Store
	Metrics      MetricsSource
	Watcher      WatcherStatus
	Analyzer     analysis.Analyzer
	FixGenerator analysis.FixGenerator
}

// Server is the HTTP/websocket front of the daemon.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	hub    *Hub
	logger *zap.Logger
	cfg    Config
	nowFn  func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.nowFn = now }
}

// NewServer creates the server and registers all routes.
func NewServer(cfg Config, deps Deps, logger *zap.Logger, opts ...Option) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("error store is required")
	}
	if deps.Metrics == nil {
		return nil, errors.New("metrics source is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s := &Server{
		echo:   e,
		deps:   deps,
		hub:    NewHub(deps.Store, deps.Metrics, logger),
		logger: logger,
		cfg:    cfg,
		nowFn:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/ws", s.hub.handleConnection)

	api := s.echo.Group("/api")
	api.GET("/metrics", s.handleMetrics)
	api.GET("/errors/recent", s.handleRecentErrors)
	api.GET("/errors/:id", s.handleGetError)
	api.POST("/errors/:id/analyze", s.handleAnalyze)
	api.POST("/errors/:id/fix", s.handleFix)
}

// Hub returns the websocket hub so the orchestrator can feed it live
// error events.
func (s *Server) Hub() *Hub { return s.hub }

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("http server listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.echo.Shutdown(ctx)
}

type healthResponse struct {
	Status  string    `json:"status"`
	Time    time.Time `json:"time"`
	Metrics any       `json:"metrics"`
	Watcher any       `json:"watcher,omitempty"`
	Clients int       `json:"ws_clients"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := healthResponse{
		Status:  "ok",
		Time:    s.nowFn(),
		Metrics: s.deps.Metrics.Snapshot(),
		Clients: s.hub.ClientCount(),
	}
	if s.deps.Watcher != nil {
		resp.Watcher = s.deps.Watcher.Status()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Metrics.Snapshot())
}

func (s *Server) handleRecentErrors(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = n
	}
	return c.JSON(http.StatusOK, map[string]any{
		"errors": s.deps.Store.Recent(limit),
		"total":  s.deps.Store.Len(),
	})
}

func (s *Server) handleGetError(c echo.Context) error {
	rec, ok := s.deps.Store.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Error not found"})
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleAnalyze(c echo.Context) error {
	if s.deps.Analyzer == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "analysis not configured"})
	}
	rec, ok := s.deps.Store.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Error not found"})
	}

	a, err := s.deps.Analyzer.Analyze(c.Request().Context(), rec)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, a)
}

func (s *Server) handleFix(c echo.Context) error {
	if s.deps.Analyzer == nil || s.deps.FixGenerator == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "fix generation not configured"})
	}
	rec, ok := s.deps.Store.Get(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Error not found"})
	}

	a, err := s.deps.Analyzer.Analyze(c.Request().Context(), rec)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	fix, err := s.deps.FixGenerator.GenerateFix(c.Request().Context(), a)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"analysis": a, "fix": fix})
}
