package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	mw "github.com/kiranshivaraju/workhuntr/internal/api/middleware"
	"github.com/kiranshivaraju/workhuntr/internal/api/response"
	"github.com/kiranshivaraju/workhuntr/internal/metrics"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	Metrics   *metrics.Metrics

	// AllowedOrigins enables CORS for browser callers. Empty disables it.
	AllowedOrigins []string

	HealthHandler    http.HandlerFunc
	DiscoveryHandler http.HandlerFunc
	ScoringHandler   http.HandlerFunc
	GetRunHandler    http.HandlerFunc
	RunStatusHandler http.HandlerFunc
	ListJobsHandler  http.HandlerFunc
	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger(deps.Metrics))
	r.Use(mw.Recovery)
	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			ExposedHeaders: []string{"Location", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
			MaxAge:         300,
		}))
	}

	// Public endpoints
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/runs/{runID}", orNotImplemented(deps.GetRunHandler))
		r.Get("/api/v1/runs/{runID}/status", orNotImplemented(deps.RunStatusHandler))
		r.Get("/api/v1/users/{userID}/jobs", orNotImplemented(deps.ListJobsHandler))

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopePipeline))

			r.Post("/api/v1/users/{userID}/discovery", orNotImplemented(deps.DiscoveryHandler))
			r.Post("/api/v1/users/{userID}/scoring", orNotImplemented(deps.ScoringHandler))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeAdmin))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
