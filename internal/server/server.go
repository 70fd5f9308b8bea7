// Package server exposes the redaction engine, the image redactor and the
// masked LLM proxy over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/privylens/privylens/internal/config"
	"github.com/privylens/privylens/internal/llm"
	"github.com/privylens/privylens/internal/redaction"
	"github.com/privylens/privylens/internal/telemetry"
	"github.com/privylens/privylens/internal/vision"
)

const shutdownTimeout = 30 * time.Second

// Server holds the dependencies of the HTTP API.
type Server struct {
	cfg       config.ServerConfig
	engine    *redaction.Engine
	images    *vision.ImageRedactor
	provider  llm.Provider
	chat      ChatDefaults
	limiter   *RateLimiter
	telemetry *telemetry.Provider
}

// ChatDefaults are the completion parameters sent with every proxied
// conversation.
type ChatDefaults struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Option configures the Server.
type Option func(*Server)

// WithImageRedactor sets the image pipeline. Without it images are only
// pixelated in caller-supplied boxes.
func WithImageRedactor(r *vision.ImageRedactor) Option {
	return func(s *Server) { s.images = r }
}

// WithProvider sets the LLM provider behind /api/llm/proxy.
func WithProvider(p llm.Provider, chat ChatDefaults) Option {
	return func(s *Server) { s.provider, s.chat = p, chat }
}

// WithTelemetry records request metrics on p.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(s *Server) { s.telemetry = p }
}

// New builds a Server around engine.
func New(cfg config.ServerConfig, engine *redaction.Engine, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		limiter: NewRateLimiter(cfg.RateLimit.GlobalRPM, cfg.RateLimit.PerClientRPM),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.images == nil {
		s.images = vision.NewImageRedactor(nil)
	}
	return s
}

// Routes returns the chi router with all middleware and routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	if s.cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(telemetry.Middleware(s.telemetry))
	r.Use(CORSMiddleware(s.cfg.AllowedOrigins))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/redact/text", s.handleRedactText)
		r.Post("/redact/image", s.handleRedactImage)
		r.With(s.limiter.Middleware).Post("/llm/proxy", s.handleLLMProxy)
	})
	return r
}

// Handler returns Routes, accepting HTTP/2 without TLS when server.h2c is
// set.
func (s *Server) Handler() http.Handler {
	h := s.Routes()
	if s.cfg.H2C {
		h = h2c.NewHandler(h, &http2.Server{})
	}
	return h
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().
		Str("addr", s.cfg.Addr).
		Bool("h2c", s.cfg.H2C).
		Bool("llm", s.provider != nil).
		Msg("privylens_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
