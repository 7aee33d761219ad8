package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ethnolens/ethnolens/internal/database"
	mw "github.com/ethnolens/ethnolens/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	Analyze         http.HandlerFunc
	AnalyzeImage    http.HandlerFunc
	Confirm         http.HandlerFunc
	GetUsage        http.HandlerFunc
	LogPremiumClick http.HandlerFunc
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AnalyzeRateLimiter func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		JSONMessage(w, http.StatusOK, "EthnoLens AI server is running")
	})

	// Liveness probe, always 200 with no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe checks the database
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
		}

		status := http.StatusOK
		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Analyze routes carry the billable model calls and can be rate-limited
		r.Group(func(r chi.Router) {
			if cfg.AnalyzeRateLimiter != nil {
				r.Use(cfg.AnalyzeRateLimiter)
			}
			r.Post("/analyze", h.Analyze)
			r.Post("/analyze-image", h.AnalyzeImage)
		})

		r.Post("/confirm", h.Confirm)
		r.Get("/usage", h.GetUsage)
		r.Post("/log-premium-click", h.LogPremiumClick)
	})

	return r
}
