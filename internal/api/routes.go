package api

import (
	"net/http"
	"time"

	"crypto-dashboard/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures a Chi router with all routes
func NewRouter(h *Handler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(cfg.HTTP.RequestTimeoutSec) * time.Second))
	r.Use(CORSMiddleware(cfg.HTTP.CORSAllowedOrigins))
	r.Use(MetricsMiddleware)

	// Metrics endpoint for Prometheus
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealth)

		r.Route("/indicators", func(r chi.Router) {
			r.Get("/", h.HandleGetIndicators)
			r.Get("/history", h.HandleGetIndicatorHistory)
		})

		r.Route("/crypto", func(r chi.Router) {
			r.Get("/historical", h.HandleGetHistorical)
			r.Get("/price", h.HandleGetPrice)
			r.Get("/trading-pairs", h.HandleGetTradingPairs)
		})

		r.Route("/analysis", func(r chi.Router) {
			r.Post("/", h.HandleAnalyze)
			r.Get("/history", h.HandleGetAnalysisHistory)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", h.HandleListSubscriptions)
			r.Post("/", h.HandleSubscribe)
			r.Delete("/", h.HandleUnsubscribe)
		})
	})

	return r
}
