package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/homescout/alert-engine/internal/api/respond"
	"github.com/homescout/alert-engine/internal/prefs"
	"github.com/homescout/alert-engine/internal/search"
)

// createSearchRequest is the wire shape for saved search creation.
type createSearchRequest struct {
	UserID    string           `json:"user_id"`
	Name      string           `json:"name"`
	Filters   search.Filters   `json:"filters"`
	Polygons  []search.Polygon `json:"polygons"`
	Frequency string           `json:"frequency"`
}

// CreateSearch registers a saved search.
// @Summary Create a saved search
// @Tags searches
// @Accept json
// @Produce json
// @Param search body createSearchRequest true "Saved search"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/searches [post]
func (h *Handler) CreateSearch(w http.ResponseWriter, r *http.Request) {
	var req createSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON body")
		return
	}
	if req.UserID == "" {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "user_id is required")
		return
	}
	if req.Frequency == "" {
		req.Frequency = string(search.FrequencyInstant)
	}

	id, err := h.searches.Create(r.Context(), search.Search{
		UserID:    req.UserID,
		Name:      req.Name,
		Filters:   req.Filters,
		Polygons:  req.Polygons,
		Frequency: search.Frequency(req.Frequency),
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "SEARCH_FAILED",
			"Failed to create saved search")
		return
	}
	respond.WriteJSONObject(w, http.StatusCreated, map[string]interface{}{"id": id})
}

// GetSearch returns one saved search.
// @Summary Get a saved search
// @Tags searches
// @Produce json
// @Param id path int true "Search id"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/searches/{id} [get]
func (h *Handler) GetSearch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", "Search id must be an integer")
		return
	}
	s, err := h.searches.Get(r.Context(), id)
	if err != nil {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Saved search not found")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"id":               s.ID,
		"user_id":          s.UserID,
		"name":             s.Name,
		"filters":          s.Filters,
		"polygons":         s.Polygons,
		"frequency":        s.Frequency,
		"is_active":        s.IsActive,
		"created_at":       s.CreatedAt,
		"last_notified_at": s.LastNotifiedAt,
	})
}

// preferencesRequest is the wire shape for preference upserts.
type preferencesRequest struct {
	UserID                string   `json:"user_id"`
	SearchID              *int64   `json:"search_id"`
	PushEnabled           bool     `json:"push_enabled"`
	EmailEnabled          bool     `json:"email_enabled"`
	SMSEnabled            bool     `json:"sms_enabled"`
	QuietStart            string   `json:"quiet_start"`
	QuietEnd              string   `json:"quiet_end"`
	ThrottlingEnabled     bool     `json:"throttling_enabled"`
	MaxDailyNotifications int      `json:"max_daily_notifications"`
	AllowedEventTypes     []string `json:"allowed_event_types"`
}

// UpsertPreferences writes user- or search-level notification preferences.
// @Summary Upsert notification preferences
// @Tags preferences
// @Accept json
// @Produce json
// @Param preferences body preferencesRequest true "Preferences (search_id null for user level)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/preferences [put]
func (h *Handler) UpsertPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON body")
		return
	}
	if req.UserID == "" {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "user_id is required")
		return
	}

	err := h.prefs.Upsert(r.Context(), prefs.Preferences{
		UserID:                req.UserID,
		SearchID:              req.SearchID,
		PushEnabled:           req.PushEnabled,
		EmailEnabled:          req.EmailEnabled,
		SMSEnabled:            req.SMSEnabled,
		QuietStart:            req.QuietStart,
		QuietEnd:              req.QuietEnd,
		ThrottlingEnabled:     req.ThrottlingEnabled,
		MaxDailyNotifications: req.MaxDailyNotifications,
		AllowedEventTypes:     req.AllowedEventTypes,
	})
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "PREFS_FAILED",
			"Failed to save preferences")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"saved": true})
}

// ResetThrottle clears today's throttle counters for a (user, search) key.
// @Summary Reset throttle counters
// @Tags throttle
// @Produce json
// @Param userID path string true "User id"
// @Param searchID path int true "Search id"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/throttle/{userID}/{searchID}/reset [post]
func (h *Handler) ResetThrottle(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	searchID, err := strconv.ParseInt(chi.URLParam(r, "searchID"), 10, 64)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", "Search id must be an integer")
		return
	}

	if err := h.throttle.ResetKey(r.Context(), userID, searchID); err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "THROTTLE_FAILED",
			"Failed to reset throttle counters")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"user_id":   userID,
		"search_id": searchID,
		"reset":     true,
	})
}
