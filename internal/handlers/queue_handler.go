package handlers

import (
	"net/http"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
	"github.com/ternarybob/arbor"
)

// defaultDrainMax bounds a drain request that does not name its own max
const defaultDrainMax = 100

// QueueHandler serves the manual drain and queue status endpoints.
type QueueHandler struct {
	queue  interfaces.QueueManager
	logger arbor.ILogger
}

func NewQueueHandler(queue interfaces.QueueManager, logger arbor.ILogger) *QueueHandler {
	return &QueueHandler{
		queue:  queue,
		logger: logger,
	}
}

// DrainHandler handles POST /api/queue/drain. Processes queued jobs for a
// twin synchronously in the request, using the same conditional claim as
// the background workers.
func (h *QueueHandler) DrainHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.DrainRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}
	if req.Max == 0 {
		req.Max = defaultDrainMax
	}

	result, err := h.queue.Drain(r.Context(), req.TwinID, req.Max)
	if err != nil {
		h.logger.Warn().Err(err).Str("twin_id", req.TwinID).Msg("Queue drain failed")
		WriteServiceError(w, err)
		return
	}

	h.logger.Info().
		Str("twin_id", req.TwinID).
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Int("remaining", result.Remaining).
		Msg("Queue drained")

	WriteJSON(w, http.StatusOK, result)
}

// StatusHandler handles GET /api/queue/status with counts per job status.
func (h *QueueHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	counts, err := h.queue.Counts(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"counts": counts,
	})
}
