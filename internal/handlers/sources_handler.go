package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
	"github.com/ternarybob/arbor"
)

// maxUploadBytes caps multipart file uploads
const maxUploadBytes = 32 << 20

// SourcesHandler serves the source lifecycle endpoints: create from URL,
// create from file upload, status read, retry and delete.
type SourcesHandler struct {
	ingest interfaces.IngestService
	logger arbor.ILogger
}

func NewSourcesHandler(ingest interfaces.IngestService, logger arbor.ILogger) *SourcesHandler {
	return &SourcesHandler{
		ingest: ingest,
		logger: logger,
	}
}

// CreateHandler handles POST /api/sources. Enqueues the ingestion and
// returns 202 without waiting on the pipeline.
func (h *SourcesHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.IngestURLRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.ingest.CreateFromURL(r.Context(), &req)
	if err != nil {
		h.logger.Warn().Err(err).Str("url", req.URL).Msg("Failed to create source from URL")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, resp)
}

// UploadHandler handles POST /api/sources/file. Accepts a multipart form
// with twin_id, an optional priority and the file itself.
func (h *SourcesHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	twinID := r.FormValue("twin_id")
	if twinID == "" {
		WriteError(w, http.StatusBadRequest, "twin_id is required")
		return
	}

	priority := 0
	if p := r.FormValue("priority"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed < 0 || parsed > 10 {
			WriteError(w, http.StatusBadRequest, "priority must be an integer between 0 and 10")
			return
		}
		priority = parsed
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read uploaded file: "+err.Error())
		return
	}
	if len(data) == 0 {
		WriteError(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	resp, err := h.ingest.CreateFromFile(r.Context(), twinID, header.Filename, data, priority)
	if err != nil {
		h.logger.Warn().Err(err).Str("file_name", header.Filename).Msg("Failed to create source from file")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, resp)
}

// GetHandler handles GET /api/sources/{id}. The source row carries the
// denormalized status fields, so this never touches the pipeline.
func (h *SourcesHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	sourceID := ExtractIDFromPath(r.URL.Path, "/api/sources")
	if sourceID == "" {
		WriteError(w, http.StatusBadRequest, "source ID is required")
		return
	}

	source, err := h.ingest.GetSource(r.Context(), sourceID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, source)
}

// RetryHandler handles POST /api/sources/{id}/retry. Idempotent: when an
// active job already exists the response carries it with existing=true.
func (h *SourcesHandler) RetryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	sourceID := ExtractIDFromPath(r.URL.Path, "/api/sources")
	if sourceID == "" {
		WriteError(w, http.StatusBadRequest, "source ID is required")
		return
	}

	var req models.RetryRequest
	if r.ContentLength > 0 {
		if !DecodeAndValidate(w, r, &req) {
			return
		}
	}

	resp, err := h.ingest.Retry(r.Context(), sourceID, req.Reset)
	if err != nil {
		h.logger.Warn().Err(err).Str("source_id", sourceID).Msg("Failed to retry source")
		WriteServiceError(w, err)
		return
	}

	status := http.StatusAccepted
	if resp.Existing {
		status = http.StatusOK
	}
	WriteJSON(w, status, resp)
}

// DeleteHandler handles DELETE /api/sources/{id} with cascade across jobs,
// vectors, document, health checks, events and the uploaded blob.
func (h *SourcesHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	sourceID := ExtractIDFromPath(r.URL.Path, "/api/sources")
	if sourceID == "" {
		WriteError(w, http.StatusBadRequest, "source ID is required")
		return
	}

	if err := h.ingest.DeleteSource(r.Context(), sourceID); err != nil {
		h.logger.Warn().Err(err).Str("source_id", sourceID).Msg("Failed to delete source")
		WriteServiceError(w, err)
		return
	}

	WriteSuccess(w, "source deleted")
}
