// Package server exposes the governor over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sttmforge/internal/config"
	"sttmforge/internal/governor"
	"sttmforge/internal/metrics"
)

// Server provides the task API.
type Server struct {
	echo       *echo.Echo
	gov        *governor.Governor
	stats      *metrics.Stats
	logger     *zap.Logger
	config     config.ServerConfig
	batchLimit int
}

// Option configures a Server.
type Option func(*Server)

// WithBatchLimit bounds concurrent tasks in one batch request.
func WithBatchLimit(n int) Option {
	return func(s *Server) { s.batchLimit = n }
}

// New creates a server around gov. stats may be nil.
func New(gov *governor.Governor, stats *metrics.Stats, logger *zap.Logger, cfg config.ServerConfig, opts ...Option) (*Server, error) {
	if gov == nil {
		return nil, errors.New("governor cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if stats == nil {
		stats = metrics.NewStats()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
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
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	s := &Server{
		echo:       e,
		gov:        gov,
		stats:      stats,
		logger:     logger,
		config:     cfg,
		batchLimit: 4,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/stats", s.handleStats)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/tasks", s.handleTask)
	v1.POST("/mapping/csv", s.handleMappingCSV)
	v1.POST("/batch", s.handleBatch)
}

// Echo exposes the router, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
