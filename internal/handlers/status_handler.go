package handlers

import (
	"net/http"
	"time"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/common"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// StatusHandler serves the service status and version endpoints.
type StatusHandler struct {
	queue       interfaces.QueueManager
	diagnostics interfaces.DiagnosticsService
	startedAt   time.Time
	logger      arbor.ILogger
}

func NewStatusHandler(queue interfaces.QueueManager, diagnostics interfaces.DiagnosticsService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		queue:       queue,
		diagnostics: diagnostics,
		startedAt:   time.Now(),
		logger:      logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	status := map[string]interface{}{
		"status":         "ok",
		"version":        common.GetVersion(),
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"diagnostics":    h.diagnostics.Available(),
	}

	if counts, err := h.queue.Counts(r.Context()); err == nil {
		status["queue"] = counts
	} else {
		h.logger.Warn().Err(err).Msg("Failed to read queue counts for status")
	}

	WriteJSON(w, http.StatusOK, status)
}

// GetVersionHandler handles GET /api/version
func (h *StatusHandler) GetVersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetFullVersion(),
	})
}
