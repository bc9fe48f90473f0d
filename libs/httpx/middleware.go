package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

type Middleware func(http.Handler) http.Handler

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError writes the JSON error body the API uses, tagged with the
// request id.
func WriteError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, RequestID: RequestIDFromContext(r.Context())})
}

// WithBodyLimit caps request bodies at limitBytes. A declared Content-Length
// over the limit is refused before the handler runs.
func WithBodyLimit(limitBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limitBytes {
				WriteError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limitBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// WithTimeout cancels the request context after d and answers 503 with a
// JSON error if the handler has not written by then.
func WithTimeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			msg, _ := json.Marshal(errorBody{Error: "request timed out", RequestID: RequestIDFromContext(r.Context())})
			w.Header().Set("Content-Type", "application/json")
			http.TimeoutHandler(next, d, string(msg)).ServeHTTP(w, r)
		})
	}
}
