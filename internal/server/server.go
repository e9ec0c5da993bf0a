// Package server provides the HTTP surface of takeoffd.
//
// The server exposes a health check, the Prometheus scrape endpoint and
// the v1 run/ledger API over an Echo router with graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/plumblinelabs/takeoffd/internal/config"
)

// Server is the takeoffd HTTP server.
type Server struct {
	config *config.Config
	logger *zap.Logger
	echo   *echo.Echo
	runs   *RunService
}

// HealthResponse is the JSON response for the /health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// NewServer creates the HTTP server and registers all routes.
//
// The server includes:
//   - Echo router with recover and request-id middleware
//   - Request logging through the supplied zap logger
//   - GET /health and GET /metrics
//   - The v1 run and ledger endpoints backed by runs
func NewServer(cfg *config.Config, runs *RunService, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	s := &Server{
		config: cfg,
		logger: logger,
		echo:   e,
		runs:   runs,
	}

	s.registerRoutes()

	return s
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/runs", s.runs.handleCreateRun)
	v1.GET("/ledgers/:document", s.runs.handleListRuns)
	v1.GET("/ledgers/:document/:run", s.runs.handleGetLedger)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: s.config.Observability.ServiceName,
	})
}

// requestLogger logs one line per request through zap instead of Echo's
// own logger, so access logs land in the same stream as everything else.
func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("http request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID))
			return nil
		},
	})
}

// Start starts the HTTP server and blocks until the context is cancelled.
//
// When the context is cancelled the server performs graceful shutdown with
// the configured timeout. Returns http.ErrServerClosed on graceful
// shutdown, or any other error encountered during startup or shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Server.Port)

	errCh := make(chan error, 1)

	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.config.Server.ShutdownTimeout,
		)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}

		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance for registering additional
// routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
