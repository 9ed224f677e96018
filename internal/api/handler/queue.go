package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/homescout/alert-engine/internal/api/respond"
	"github.com/homescout/alert-engine/internal/queue"
)

// ProcessQueue runs one retry-queue batch immediately.
// @Summary Process one retry queue batch
// @Description Claims ready items, revalidates throttle policy, and delivers or requeues each.
// @Tags queue
// @Produce json
// @Success 200 {object} queue.BatchResult
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/queue/process [post]
func (h *Handler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	res, err := h.processor.ProcessBatch(r.Context())
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "QUEUE_FAILED",
			"Queue batch processing failed")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, res)
}

// ListQueue lists queue items, optionally filtered by status.
// @Summary List retry queue items
// @Tags queue
// @Produce json
// @Param status query string false "Filter by status (queued, processing, sent, failed, expired)"
// @Param limit query int false "Maximum items to return" default(100)
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/queue [get]
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	status := queue.Status(r.URL.Query().Get("status"))

	items, err := h.queue.List(r.Context(), status, limit)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "QUEUE_FAILED",
			"Failed to list queue items")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"count": len(items),
		"items": items,
	})
}

// GetQueueItem returns one queue item by id.
// @Summary Get a retry queue item
// @Tags queue
// @Produce json
// @Param id path string true "Queue item UUID"
// @Success 200 {object} queue.Item
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/queue/{id} [get]
func (h *Handler) GetQueueItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.queueID(w, r)
	if !ok {
		return
	}
	item, err := h.queue.Get(r.Context(), id)
	if errors.Is(err, queue.ErrNotFound) {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Queue item not found")
		return
	}
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "QUEUE_FAILED",
			"Failed to load queue item")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, item)
}

// RetryQueueItem resets a terminal item for immediate reprocessing.
// @Summary Retry a queue item
// @Tags queue
// @Produce json
// @Param id path string true "Queue item UUID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/queue/{id}/retry [post]
func (h *Handler) RetryQueueItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.queueID(w, r)
	if !ok {
		return
	}
	err := h.queue.Retry(r.Context(), id)
	if errors.Is(err, queue.ErrNotFound) {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Queue item not found")
		return
	}
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "QUEUE_FAILED",
			"Failed to retry queue item")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"retried": id})
}

// RemoveQueueItem deletes a queue item.
// @Summary Remove a queue item
// @Tags queue
// @Produce json
// @Param id path string true "Queue item UUID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/queue/{id} [delete]
func (h *Handler) RemoveQueueItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.queueID(w, r)
	if !ok {
		return
	}
	err := h.queue.Remove(r.Context(), id)
	if errors.Is(err, queue.ErrNotFound) {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Queue item not found")
		return
	}
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "QUEUE_FAILED",
			"Failed to remove queue item")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"removed": id})
}

func (h *Handler) queueID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", "Queue item id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
