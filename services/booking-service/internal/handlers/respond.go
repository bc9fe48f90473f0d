package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/groomly/libs/httpx"
	"github.com/md-rashed-zaman/groomly/services/booking-service/internal/model"
)

type errorBody struct {
	Error       string            `json:"error"`
	Reason      model.Reason      `json:"reason,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	Suggestions *[]model.Slot     `json:"suggestions,omitempty"`
	Retry       bool              `json:"retry,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes. Anything unrecognised
// is logged and returned as a 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	body := errorBody{Error: err.Error(), RequestID: httpx.RequestIDFromContext(r.Context())}

	var (
		avail      *model.AvailabilityError
		validation *model.ValidationError
	)
	switch {
	case errors.Is(err, model.ErrNotFound):
		body.Error = "not found"
		writeJSON(w, http.StatusNotFound, body)
	case errors.As(err, &avail):
		// An empty list is still sent so clients can tell "no alternatives" apart.
		suggestions := avail.Suggestions
		if suggestions == nil {
			suggestions = []model.Slot{}
		}
		body.Reason = avail.Reason
		body.Suggestions = &suggestions
		writeJSON(w, http.StatusConflict, body)
	case errors.Is(err, model.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, body)
	case errors.As(err, &validation):
		body.Error = "validation failed"
		body.Fields = validation.FieldErrors
		writeJSON(w, http.StatusBadRequest, body)
	case errors.Is(err, model.ErrConcurrencyConflict):
		body.Retry = true
		writeJSON(w, http.StatusConflict, body)
	default:
		logger.ErrorContext(r.Context(), "request failed", "err", err, "path", r.URL.Path)
		body.Error = "internal error"
		writeJSON(w, http.StatusInternalServerError, body)
	}
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, RequestID: httpx.RequestIDFromContext(r.Context())})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func tenantID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(httpx.TenantHeader))
}

// requireTenant rejects requests without a tenant header.
func requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tenantID(r) == "" {
			badRequest(w, r, "missing "+httpx.TenantHeader+" header")
			return
		}
		next.ServeHTTP(w, r)
	})
}
