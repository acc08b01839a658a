package server

import (
	"net/http"

	"github.com/cloo-solutions/campaignkb/internal/api"
	"github.com/cloo-solutions/campaignkb/internal/api/handlers"
	"github.com/cloo-solutions/campaignkb/internal/api/middleware"
	"github.com/cloo-solutions/campaignkb/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	KBHandler *handlers.KBHandler
	// FeatureEnabled gates every knowledge base route.
	FeatureEnabled bool
	// Gatherer backs /metrics. Defaults to the global registry.
	Gatherer prometheus.Gatherer
	// Metrics records per-route request counts. May be nil.
	Metrics *telemetry.Metrics
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.Metrics(cfg.Metrics))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireFeature(cfg.FeatureEnabled))

		r.Post("/ingest", cfg.KBHandler.Ingest)
		r.Post("/sync", cfg.KBHandler.Sync)
		r.Post("/ask", cfg.KBHandler.Ask)
		r.Get("/sessions/{session}/enemies", cfg.KBHandler.SessionEnemies)
		r.Get("/documents/{stem}/chunks", cfg.KBHandler.GetManifest)
	})

	return r
}
