// Package server exposes health, metrics and engine state over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Pinger checks a backing dependency, usually the database.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config holds the server's dependencies.
type Config struct {
	Addr     string
	DB       Pinger
	Gatherer prometheus.Gatherer
	// State returns the JSON-encodable watcher state.
	State  func() any
	Logger zerolog.Logger
}

// Server wraps Echo HTTP server.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger zerolog.Logger
}

func New(cfg Config) *Server {
	logger := cfg.Logger.With().Str("component", "http").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(recoverer(logger))
	e.Use(requestLogging(logger))

	h := &handler{db: cfg.DB, state: cfg.State}
	e.GET("/healthz", h.health)
	e.GET("/state", h.getState)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return &Server{echo: e, addr: cfg.Addr, logger: logger}
}

// Start serves in the background until Stop.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("http server listening")
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("http server error")
		}
	}()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

type handler struct {
	db    Pinger
	state func() any
}

func (h *handler) health(c echo.Context) error {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) getState(c echo.Context) error {
	if h.state == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no state"})
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(http.StatusOK, h.state())
}
