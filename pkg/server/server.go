// Package server exposes the workflow over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zen-systems/ticketflow/pkg/config"
	"github.com/zen-systems/ticketflow/pkg/ticket"
	"github.com/zen-systems/ticketflow/pkg/usage"
	"github.com/zen-systems/ticketflow/pkg/workflow"
)

// Processor runs tickets. *workflow.Engine implements it.
type Processor interface {
	ProcessRequest(ctx context.Context, req workflow.Request) (ticket.State, error)
	UsageSummary() usage.Summary
}

// Metrics is the collector surface the server uses.
type Metrics interface {
	Handler() http.Handler
	ObserveHTTP(method, path string, status int, d time.Duration)
}

// Server is the HTTP API.
type Server struct {
	cfg       config.ServerConfig
	processor Processor
	results   *ristretto.Cache[string, ticket.State]
	limiter   *rate.Limiter
	metrics   Metrics
	logger    *zap.Logger
	ready     atomic.Bool
	router    chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics serves /metrics and records request metrics.
func WithMetrics(m Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, p Processor, opts ...Option) (*Server, error) {
	if p == nil {
		return nil, errors.New("server: processor is required")
	}
	size := cfg.ResultCacheSize
	if size <= 0 {
		size = 10_000
	}
	results, err := ristretto.NewCache(&ristretto.Config[string, ticket.State]{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,

		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("result cache: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		processor: p,
		results:   results,
		limiter:   newLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ready.Store(true)
	s.router = s.routes()
	return s, nil
}

func newLimiter(rpm, burst int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60), burst)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", CorrelationHeader},
		ExposedHeaders: []string{CorrelationHeader},
	})

	r.Use(chimw.RealIP)
	r.Use(correlationID)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(c.Handler)

	r.Get("/health", s.handleHealth)
	r.Get("/readiness", s.handleReadiness)
	r.Get("/usage", s.handleUsage)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Post("/tickets", s.handleCreateTicket)
	r.Get("/tickets/{id}", s.handleGetTicket)
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// SetReady flips the readiness probe.
func (s *Server) SetReady(ready bool) { s.ready.Store(ready) }

// Run serves on cfg.Addr until ctx is done, then drains within
// cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http_server_started", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.SetReady(false)
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	s.logger.Info("http_server_stopping")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases the result cache.
func (s *Server) Close() {
	s.results.Close()
}
