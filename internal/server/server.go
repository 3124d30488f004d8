// Package server assembles the replygate HTTP service from its configuration.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mihaimyh/replygate/internal/config"
	"github.com/mihaimyh/replygate/pkg/api"
	"github.com/mihaimyh/replygate/pkg/replygate"
	zerologAdapter "github.com/mihaimyh/replygate/pkg/replygate/logger/zerolog"
	prommetrics "github.com/mihaimyh/replygate/pkg/replygate/metrics/prometheus"
)

// Server owns the engine, its store and the HTTP router.
type Server struct {
	engine  *replygate.Engine
	router  chi.Router
	backend *backend
	store   replygate.Store
	logger  zerolog.Logger
}

// Options carries dependencies that tests substitute.
type Options struct {
	// Registry receives the replygate collectors (default: a fresh registry)
	Registry *prometheus.Registry

	// Clock and Sleeper override the engine's time source
	Clock   replygate.Clock
	Sleeper replygate.Sleeper
}

// New opens the configured store and builds the engine and routes.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Server, error) {
	loc, err := cfg.Engine.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	metrics := prommetrics.NewMetrics(reg, cfg.Metrics.Namespace)

	b, err := openBackend(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	store := b.store
	if cfg.Breaker.Enabled {
		store = replygate.NewBreakerStore(store, cfg.Breaker.Settings(), metrics)
	}

	engine, err := replygate.NewEngine(store, replygate.Config{
		Clock:               opts.Clock,
		Sleeper:             opts.Sleeper,
		Logger:              zerologAdapter.NewLogger(logger),
		Metrics:             metrics,
		RateLimiter:         b.limiter,
		EnforceRateLimits:   cfg.Engine.EnforceRateLimits,
		Location:            loc,
		UseSettingsTimezone: cfg.Engine.UseSettingsTimezone,
		LogRingSize:         cfg.Engine.LogRingSize,
	})
	if err != nil {
		_ = b.close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	handler, err := api.NewHandler(api.Config{
		Engine:    engine,
		GetUserID: api.FromHeader(api.DefaultUserHeader),
		GetPlanID: api.FromHeader(api.DefaultPlanHeader),
		Logger:    zerologAdapter.NewLogger(logger),
	})
	if err != nil {
		_ = b.close()
		return nil, err
	}

	s := &Server{
		engine:  engine,
		backend: b,
		store:   store,
		logger:  logger,
	}
	s.router = s.routes(handler, reg)
	return s, nil
}

func (s *Server) routes(handler *api.Handler, reg *prometheus.Registry) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/dispatch", handler.Dispatch)
		r.Get("/analytics", handler.GetAnalytics)
		r.Get("/upgrade-prompt", handler.GetUpgradePrompt)
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Engine returns the engine serving requests.
func (s *Server) Engine() *replygate.Engine {
	return s.engine
}

// Shutdown releases the store resources.
func (s *Server) Shutdown(_ context.Context) error {
	return s.backend.close()
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if p, ok := s.store.(replygate.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("health check failed")
			status, code = "unavailable", http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
