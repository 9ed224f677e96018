package handler

import (
	"io"
	"net/http"

	"github.com/homescout/alert-engine/internal/api/respond"
	"github.com/homescout/alert-engine/internal/event"
)

// Inbound payloads are full listing snapshots; 1 MB is generous.
const maxEventBody = 1 << 20

// IngestEvent accepts one listing change event and runs the fan-out
// synchronously. The primary real-time path is LISTEN/NOTIFY; this endpoint
// serves backfills, integrations without database access, and testing.
// @Summary Ingest a listing change event
// @Description Normalizes the payload and evaluates it against all active searches.
// @Tags events
// @Accept json
// @Produce json
// @Param event body object true "Listing change event"
// @Success 200 {object} engine.Summary
// @Failure 400 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/events [post]
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Failed to read request body")
		return
	}

	ev, err := event.Parse(body)
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_EVENT",
			"Event payload failed validation", err.Error())
		return
	}

	sum, err := h.engine.HandleEvent(r.Context(), ev)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "EVENT_FAILED",
			"Event processing failed")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, sum)
}
