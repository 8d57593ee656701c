package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/drumstick90/authordigest/internal/domain"
	"github.com/drumstick90/authordigest/internal/llm"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// writeDomainError maps domain and provider errors to HTTP status codes.
// Validation messages are safe to echo; everything else stays generic so
// internal details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNoData):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":            "no cached extracts available; run extraction first",
			"needs_extraction": true,
		})
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	default:
		var apiErr *llm.APIError
		var extErr *domain.ExternalAPIError
		if errors.As(err, &apiErr) || errors.As(err, &extErr) {
			writeError(w, http.StatusBadGateway, "upstream provider error")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
