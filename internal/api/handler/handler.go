// Package handler provides HTTP handlers for all API endpoints.
// Handlers query Postgres directly via pgxpool — no service layer.
package handler

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homescout/alert-engine/internal/api/respond"
	"github.com/homescout/alert-engine/internal/config"
	"github.com/homescout/alert-engine/internal/engine"
	"github.com/homescout/alert-engine/internal/prefs"
	"github.com/homescout/alert-engine/internal/queue"
	"github.com/homescout/alert-engine/internal/search"
	"github.com/homescout/alert-engine/internal/throttle"
)

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	pool      *pgxpool.Pool
	cfg       *config.Config
	engine    *engine.Engine
	processor *queue.Processor
	queue     queue.Store
	throttle  *throttle.Manager
	searches  *search.PGStore
	prefs     *prefs.PGStore
}

// New creates a Handler with shared dependencies.
func New(pool *pgxpool.Pool, cfg *config.Config, eng *engine.Engine, proc *queue.Processor, qs queue.Store, tm *throttle.Manager) *Handler {
	return &Handler{
		pool:      pool,
		cfg:       cfg,
		engine:    eng,
		processor: proc,
		queue:     qs,
		throttle:  tm,
		searches:  search.NewPGStore(pool),
		prefs:     prefs.NewPGStore(pool),
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "HomeScout Alert Engine",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	var n int
	err := h.pool.QueryRow(r.Context(), "health_check").Scan(&n)
	if err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckThrottle reports throttle subsystem status.
// @Summary Throttle health check
// @Description Reports whether throttling is enabled and batch mode active.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/throttle [get]
func (h *Handler) HealthCheckThrottle(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":            "healthy",
		"throttling":        h.cfg.ThrottlingEnabled,
		"batch_mode_active": h.throttle.BatchModeActive(),
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	})
}
