package handlers

import (
	"net/http"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// DiagnosticsHandler serves the per-source event timeline.
type DiagnosticsHandler struct {
	diagnostics interfaces.DiagnosticsService
	logger      arbor.ILogger
}

func NewDiagnosticsHandler(diagnostics interfaces.DiagnosticsService, logger arbor.ILogger) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		diagnostics: diagnostics,
		logger:      logger,
	}
}

// TimelineHandler handles GET /api/sources/{id}/timeline. When the
// diagnostics schema is not provisioned this is a 503, not an empty list,
// so callers can tell "no events" apart from "cannot know".
func (h *DiagnosticsHandler) TimelineHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	sourceID := ExtractIDFromPath(r.URL.Path, "/api/sources")
	if sourceID == "" {
		WriteError(w, http.StatusBadRequest, "source ID is required")
		return
	}

	events, err := h.diagnostics.Timeline(r.Context(), sourceID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"source_id": sourceID,
		"events":    events,
		"count":     len(events),
	})
}
