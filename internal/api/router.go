package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/alialshehriar/bithrah-app-sub003/internal/api/middleware"
	"github.com/alialshehriar/bithrah-app-sub003/internal/config"
	"github.com/alialshehriar/bithrah-app-sub003/internal/handlers"
	"github.com/alialshehriar/bithrah-app-sub003/internal/negotiation"
	"github.com/alialshehriar/bithrah-app-sub003/internal/store"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg *config.Config, logger zerolog.Logger, orch *negotiation.Orchestrator, db store.DataStore, redisStore *store.RedisStore) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (skipped when Redis is not configured)
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore, logger, middleware.RateLimiterConfig{
			Whitelist: cfg.RateLimitWhitelist,
		})
		r.Use(limiter.Middleware)
	}

	// CORS - the web and mobile frontends call from their own origins
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(orch, db, redisStore, logger)
	auth := middleware.NewAuthMiddleware(cfg.JWTSecret)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// Authenticated routes (require a bearer token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Post("/negotiations", h.OpenNegotiation)
		r.Get("/negotiations/{id}", h.GetNegotiation)
		r.Post("/negotiations/{id}/deposit", h.ConfirmDeposit)
		r.Get("/negotiations/{id}/messages", h.GetMessages)
		r.Post("/negotiations/{id}/messages", h.PostMessage)
		r.Post("/negotiations/{id}/cancel", h.CancelNegotiation)
		r.Post("/negotiations/{id}/finalize", h.FinalizeNegotiation)
	})

	return r
}
