// Package opsapi serves health and metrics endpoints for long-running
// curator processes.
package opsapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const pingTimeout = 2 * time.Second

// Pinger is satisfied by *db.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type Server struct {
	pinger   Pinger
	gatherer prometheus.Gatherer
	logger   zerolog.Logger
	opts     Options
	echo     *echo.Echo
}

func NewServer(pinger Pinger, gatherer prometheus.Gatherer, logger zerolog.Logger, opts Options) *Server {
	if strings.TrimSpace(opts.Addr) == "" {
		opts.Addr = "127.0.0.1:9464"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{pinger: pinger, gatherer: gatherer, logger: logger, opts: opts}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler
	e.Use(middleware.Recover())

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	s.echo = e

	return s
}

// Handler exposes the routes without a listener.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("ops server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", s.opts.Addr).Msg("ops server started")
	if err := s.echo.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start ops server: %w", err)
	}
	s.logger.Info().Msg("ops server stopped")
	return nil
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.pinger == nil {
		return success(c, map[string]string{"status": "ok"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), pingTimeout)
	defer cancel()
	if err := s.pinger.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("health check database ping failed")
		return unavailable(c, "database unavailable", map[string]string{"database": "down"})
	}
	return success(c, map[string]string{"status": "ok", "database": "up"})
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code < http.StatusInternalServerError {
		_ = fail(c, he.Code, http.StatusText(he.Code))
		return
	}
	s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("ops request failed")
	_ = c.JSON(http.StatusInternalServerError, jsendResponse{
		Status:  "error",
		Message: "Internal server error",
		Code:    http.StatusInternalServerError,
	})
}
