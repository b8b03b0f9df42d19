package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/heptiolabs/healthcheck"
	"github.com/rs/zerolog"

	"github.com/shohag/hookrelay/internal/config"
	"github.com/shohag/hookrelay/internal/metrics"
	"github.com/shohag/hookrelay/internal/storage"
	"github.com/shohag/hookrelay/internal/webhook"
)

const readinessTimeout = 2 * time.Second

type Deps struct {
	Store   storage.Storage
	Service *webhook.Service
	Queue   webhook.Queue
	// ReadyChecks are extra readiness probes, e.g. the Redis attempt log.
	ReadyChecks map[string]func(context.Context) error
}

type Server struct {
	cfg    *config.Config
	deps   Deps
	health healthcheck.Handler
	router *chi.Mux
	log    zerolog.Logger
	http   *http.Server
}

func NewServer(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		health: healthcheck.NewHandler(),
		log:    log,
	}
	s.addReadyCheck("storage", deps.Store.Ping)
	for name, check := range deps.ReadyChecks {
		s.addReadyCheck(name, check)
	}
	s.router = s.buildRouter()
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) addReadyCheck(name string, ping func(context.Context) error) {
	s.health.AddReadinessCheck(name, healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
		defer cancel()
		return ping(ctx)
	}, readinessTimeout))
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(s.log))
	r.Use(middleware.Recoverer)
	if s.cfg.Metrics.Enabled {
		r.Use(MetricsMiddleware)
	}

	whHandler := NewWebhookHandler(s.deps.Service)
	evtHandler := NewEventHandler(s.deps.Service, s.deps.Queue)
	statsHandler := NewStatsHandler(s.deps.Service)

	// Health and metrics, no auth
	r.Get("/health", statsHandler.Health)
	r.Get("/live", s.health.LiveEndpoint)
	r.Get("/ready", s.health.ReadyEndpoint)
	if s.cfg.Metrics.Enabled {
		metrics.RegisterDefault()
		r.Handle(s.cfg.Metrics.Path, metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Tenant management, only when an admin token is configured
		if s.cfg.Server.AdminToken != "" {
			tenantHandler := NewTenantHandler(s.deps.Store, s.deps.Service, s.cfg.Webhooks.Defaults)
			r.Group(func(r chi.Router) {
				r.Use(AdminMiddleware(s.cfg.Server.AdminToken))
				r.Post("/tenants", tenantHandler.Create)
				r.Get("/tenants", tenantHandler.List)
				r.Get("/tenants/{id}", tenantHandler.Get)
				r.Delete("/tenants/{id}", tenantHandler.Delete)
				r.Post("/tenants/{id}/rotate-key", tenantHandler.RotateKey)
			})
		}

		// Tenant-scoped routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(s.deps.Store))

			r.Get("/webhooks/settings", whHandler.GetSettings)
			r.Put("/webhooks/settings", whHandler.UpdateSettings)

			r.Post("/webhooks", whHandler.Create)
			r.Get("/webhooks", whHandler.List)
			r.Get("/webhooks/{id}", whHandler.Get)
			r.Put("/webhooks/{id}", whHandler.Update)
			r.Delete("/webhooks/{id}", whHandler.Delete)
			r.Patch("/webhooks/{id}/toggle", whHandler.Toggle)
			r.Post("/webhooks/{id}/test", whHandler.Test)
			r.Get("/webhooks/{id}/logs", whHandler.Logs)
			r.Get("/webhooks/{id}/stats", whHandler.Stats)

			r.Post("/events", evtHandler.Publish)
			r.Get("/stats", statsHandler.Stats)
		})
	})

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
