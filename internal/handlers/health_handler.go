package handlers

import (
	"net/http"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// HealthHandler serves the per-source health check endpoints.
type HealthHandler struct {
	health interfaces.HealthService
	logger arbor.ILogger
}

func NewHealthHandler(health interfaces.HealthService, logger arbor.ILogger) *HealthHandler {
	return &HealthHandler{
		health: health,
		logger: logger,
	}
}

// ListHandler handles GET /api/sources/{id}/health and returns the stored
// results from the most recent run.
func (h *HealthHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	sourceID := ExtractIDFromPath(r.URL.Path, "/api/sources")
	if sourceID == "" {
		WriteError(w, http.StatusBadRequest, "source ID is required")
		return
	}

	checks, err := h.health.ListChecks(r.Context(), sourceID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"source_id": sourceID,
		"checks":    checks,
		"count":     len(checks),
	})
}

// RunHandler handles POST /api/sources/{id}/health/run and executes the
// checks synchronously.
func (h *HealthHandler) RunHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	sourceID := ExtractIDFromPath(r.URL.Path, "/api/sources")
	if sourceID == "" {
		WriteError(w, http.StatusBadRequest, "source ID is required")
		return
	}

	checks, err := h.health.RunChecks(r.Context(), sourceID)
	if err != nil {
		h.logger.Warn().Err(err).Str("source_id", sourceID).Msg("Health check run failed")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"source_id": sourceID,
		"checks":    checks,
		"count":     len(checks),
	})
}
