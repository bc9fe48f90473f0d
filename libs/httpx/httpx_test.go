package httpx

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func newRequest(tenant string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/appointments", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	if tenant != "" {
		req.Header.Set(TenantHeader, tenant)
	}
	return req
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Middleware()(okHandler)

	codes := make([]int, 0, 3)
	remaining := make([]string, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, newRequest("t1"))
		codes = append(codes, rec.Code)
		remaining = append(remaining, rec.Header().Get(HeaderRateRemaining))
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
	assert.Equal(t, []string{"1", "0", "0"}, remaining)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("t2"))
	assert.Equal(t, http.StatusOK, rec.Code, "tenants have separate buckets")

	now = now.Add(2 * time.Minute)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("t1"))
	assert.Equal(t, http.StatusOK, rec.Code, "window resets")
}

func TestRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := NewRedisRateLimiter(rdb, 1, time.Minute, "").Middleware(slog.Default(), false)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("t1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(HeaderRateLimit))
	assert.Equal(t, "0", rec.Header().Get(HeaderRateRemaining))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("t1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())

	assert.True(t, mr.Exists("groomly:rl:t1:10.0.0.1"))
	mr.FastForward(2 * time.Minute)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest("t1"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRedisRateLimiter_FailOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	rl := NewRedisRateLimiter(rdb, 1, time.Minute, "test")

	rec := httptest.NewRecorder()
	rl.Middleware(nil, true)(okHandler).ServeHTTP(rec, newRequest(""))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	rl.Middleware(nil, false)(okHandler).ServeHTTP(rec, newRequest(""))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWithRequestID(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newRequest(""))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := newRequest("")
	req.Header.Set(RequestIDHeader, "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "abc", seen)
}

func TestWithCORS_Preflight(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST"},
	})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/v1/slots", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestWithCORS_SubdomainPattern(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://*.groomly.app"},
		ExposedHeaders: []string{RequestIDHeader},
	})(okHandler)

	cases := map[string]bool{
		"https://paws.groomly.app":  true,
		"https://PAWS.groomly.app":  true,
		"https://groomly.app":       false,
		"http://paws.groomly.app":   false,
		"https://paws.groomly.apps": false,
		"https://evilgroomly.app":   false,
	}
	for origin, allowed := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/slots", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		got := rec.Header().Get("Access-Control-Allow-Origin")
		if allowed {
			assert.Equal(t, origin, got, origin)
			assert.Equal(t, RequestIDHeader, rec.Header().Get("Access-Control-Expose-Headers"), origin)
		} else {
			assert.Empty(t, got, origin)
		}
		assert.Equal(t, http.StatusOK, rec.Code, origin)
	}
}

func TestWithCORS_AnyOrigin(t *testing.T) {
	h := WithCORS(CORSPolicy{AllowedOrigins: []string{"*"}})(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/v1/slots", nil)
	req.Header.Set("Origin", "https://salon.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	h = WithCORS(CORSPolicy{AllowedOrigins: []string{"*"}, AllowCredentials: true})(okHandler)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://salon.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}


func TestWithTimeout_WritesJSONError(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	h := WithRequestID(WithTimeout(20 * time.Millisecond)(slow))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"request timed out","request_id":"req-7"}`, rec.Body.String())
}

func TestWithBodyLimit_RefusesDeclaredOversize(t *testing.T) {
	called := false
	h := WithBodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(`{"service_id":"abc"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, called)
}

func TestWithAccessLog_UsesRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(WithAccessLog(logger))
	r.Get("/api/v1/appointments/{appointmentID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := newRequest("t1")
	req.URL.Path = "/api/v1/appointments/8d7f0c8e-2d34-4f5e-9d3a-0f6c2b7a9e11"
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	assert.Equal(t, "/api/v1/appointments/{appointmentID}", entry["route"])
	assert.Equal(t, "t1", entry["tenant_id"])
	assert.EqualValues(t, http.StatusNoContent, entry["status"])
}
