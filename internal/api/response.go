package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/eliksir-bar/eliksir-analytics/internal/pageview"
	"github.com/eliksir-bar/eliksir-analytics/internal/store"
)

// errorResponse is the standard error response format.
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeJSON encodes v as JSON and writes it to the response.
// It buffers the encoding to detect errors before writing headers.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("json encode failed")
		writeErrorFallback(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("write response failed")
	}
}

// writeError writes a JSON error response with consistent format.
// For 5xx errors, the underlying error is logged for debugging.
// The public message is what clients see; use generic messages for 5xx.
func writeError(w http.ResponseWriter, r *http.Request, status int, public string, err error) {
	if public == "" {
		public = http.StatusText(status)
	}
	if status >= 500 && err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, r, status, errorResponse{Error: public})
}

// writeDomainError maps the page view error taxonomy and store sentinels
// onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *pageview.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, store.ErrInvalidCursor):
		writeError(w, r, http.StatusBadRequest, "invalid cursor", nil)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrUserNotFound):
		writeError(w, r, http.StatusNotFound, "not found", nil)
	case errors.Is(err, pageview.ErrStorageUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "storage unavailable", err)
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error", err)
	}
}

// writeErrorFallback writes a plain text error when JSON encoding fails.
// This is a last-resort fallback to avoid infinite recursion.
func writeErrorFallback(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(message))
}
