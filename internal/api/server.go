package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/homescout/alert-engine/internal/api/handler"
	"github.com/homescout/alert-engine/internal/config"
	"github.com/homescout/alert-engine/internal/engine"
	"github.com/homescout/alert-engine/internal/queue"
	"github.com/homescout/alert-engine/internal/throttle"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(pool *pgxpool.Pool, cfg *config.Config, eng *engine.Engine, proc *queue.Processor, qs queue.Store, tm *throttle.Manager) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "Retry-After"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Handler dependencies ---
	h := handler.New(pool, cfg, eng, proc, qs, tm)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/throttle", h.HealthCheckThrottle)
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Event ingestion (backfill / integration path)
		r.Post("/events", h.IngestEvent)

		// Saved searches
		r.Post("/searches", h.CreateSearch)
		r.Get("/searches/{id}", h.GetSearch)

		// Notification preferences
		r.Put("/preferences", h.UpsertPreferences)

		// Retry queue operations
		r.Route("/queue", func(r chi.Router) {
			r.Get("/", h.ListQueue)
			r.Post("/process", h.ProcessQueue)
			r.Get("/{id}", h.GetQueueItem)
			r.Post("/{id}/retry", h.RetryQueueItem)
			r.Delete("/{id}", h.RemoveQueueItem)
		})

		// Throttle operations
		r.Post("/throttle/{userID}/{searchID}/reset", h.ResetThrottle)
	})

	return r
}
