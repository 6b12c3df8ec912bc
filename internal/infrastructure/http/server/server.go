package server

import (
	"context"
	"fmt"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Server is the metrics/health listener exposed while the live
// listener runs.
type Server struct {
	server *fasthttp.Server
	Router *router.Router
	addr   string
	logger zerolog.Logger
}

// NewServer creates a new fasthttp server
func NewServer(name, port string, logger zerolog.Logger) *Server {
	r := router.New()

	srv := &fasthttp.Server{
		Handler:      r.Handler,
		Name:         name,
		ReadTimeout:  5_000_000_000,   // 5 seconds
		WriteTimeout: 10_000_000_000,  // 10 seconds
		IdleTimeout:  120_000_000_000, // 120 seconds
	}

	return &Server{
		server: srv,
		Router: r,
		addr:   fmt.Sprintf(":%s", port),
		logger: logger.With().Str("component", "http_server").Logger(),
	}
}

// RegisterMetrics registers Prometheus metrics endpoint
func (s *Server) RegisterMetrics() {
	// Adapt promhttp.Handler to fasthttp
	prometheusHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s.Router.GET("/metrics", prometheusHandler)
}

// RegisterHealth registers the liveness probe. The check callback
// reports whether the Telegram session is up.
func (s *Server) RegisterHealth(check func() bool) {
	s.Router.GET("/health", func(ctx *fasthttp.RequestCtx) {
		if check != nil && !check() {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			ctx.SetBodyString(`{"status":"degraded"}`)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"ok"}`)
	})
}

// Start starts the HTTP server in a separate goroutine
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.addr).
		Msg("Starting HTTP server")

	go func() {
		if err := s.server.ListenAndServe(s.addr); err != nil {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")

	if err := s.server.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped gracefully")
	return nil
}
