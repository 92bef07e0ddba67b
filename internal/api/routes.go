package api

import (
	"dogi/internal/health"
	"dogi/internal/job"
	"dogi/internal/observability"
	"dogi/internal/output"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Jobs             *job.Coordinator
	Outputs          *output.Manager
	Metrics          *observability.Metrics
	HealthChecker    *health.Checker
	SignaturesSecret string
	BypassSignatures bool
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Jobs, cfg.Outputs, cfg.Metrics, cfg.HealthChecker)

	r := chi.NewRouter()

	// Middleware chain (order matters: outermost first)
	r.Use(middleware.RequestID)
	r.Use(RecoveryMiddleware())
	r.Use(LoggingMiddleware(slog.Default()))
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	r.Use(CORSMiddleware())

	// Health check endpoints (liveness/readiness probes) - no signature
	r.Get("/livez", handler.Livez)
	r.Get("/readyz", handler.Readyz)

	// Artifact locators are handed out unsigned
	r.Get("/output/{fingerprint}/{artifactId}", handler.Output)

	r.Group(func(r chi.Router) {
		r.Use(SignatureMiddleware(cfg.SignaturesSecret, cfg.BypassSignatures))

		for _, scheme := range Schemes {
			r.Get("/"+scheme+"/*", handler.Lifecycle(scheme))
		}
		r.Get("/jobs", handler.ListJobs)
		r.Get("/collect/{artifactId}", handler.Collect)
	})

	return r
}
