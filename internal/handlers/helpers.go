package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
)

var validate = validator.New()

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteServiceError maps the sentinel errors shared across services onto
// their HTTP status. Unrecognized errors become a 500.
func WriteServiceError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return WriteError(w, http.StatusNotFound, "source not found")
	case errors.Is(err, interfaces.ErrDiagnosticsUnavailable):
		return WriteError(w, http.StatusServiceUnavailable, "diagnostics_unavailable")
	default:
		return WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// DecodeAndValidate decodes a JSON request body into dst and runs the
// validator tags. Writes the error response itself and returns false when
// the payload is rejected.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return false
	}
	return true
}

// ExtractIDFromPath pulls the identifier segment out of a path like
// /api/sources/{id} or /api/sources/{id}/retry given the route prefix.
func ExtractIDFromPath(path, prefix string) string {
	id := strings.TrimPrefix(path, prefix)
	id = strings.Trim(id, "/")
	if idx := strings.Index(id, "/"); idx >= 0 {
		id = id[:idx]
	}
	return id
}
