package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"pmt/internal/core"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// writeDomainError maps domain sentinels to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrValidation):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrConflict):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrForbidden):
		jsonError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, core.ErrReferentialIntegrity),
		errors.Is(err, core.ErrInvalidOperation):
		jsonError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("Unhandled error", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}
