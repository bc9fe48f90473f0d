package httpx

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
)

// windowHit is the state of a fixed window after counting one request.
type windowHit struct {
	count   int64
	resetIn time.Duration
}

type hitFunc func(ctx context.Context, key string) (windowHit, error)

// limitRequests enforces limit per client key. Every response carries the
// limit and the remaining budget; a rejected one also gets Retry-After.
// Counter errors are logged and pass through when failOpen is set.
func limitRequests(limit int, hit hitFunc, logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h, err := hit(r.Context(), clientKey(r))
			if err != nil {
				if logger != nil {
					logger.WarnContext(r.Context(), "rate limiter unavailable", "err", err)
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, r, http.StatusServiceUnavailable, "rate limiter unavailable")
				return
			}

			remaining := max(int64(limit)-h.count, 0)
			w.Header().Set(HeaderRateLimit, strconv.Itoa(limit))
			w.Header().Set(HeaderRateRemaining, strconv.FormatInt(remaining, 10))
			if h.count > int64(limit) {
				retry := max(int(math.Ceil(h.resetIn.Seconds())), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				WriteError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter is an in-process fixed-window limiter, used when Redis is not configured.
type RateLimiter struct {
	limit    int
	window   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	count     int64
	resetTime time.Time
}

// sweepThreshold is the number of tracked clients above which expired
// windows are dropped.
const sweepThreshold = 10_000

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		visitors: map[string]*visitor{},
	}
}

func (rl *RateLimiter) Middleware() Middleware {
	return limitRequests(rl.limit, rl.hit, nil, false)
}

func (rl *RateLimiter) hit(_ context.Context, key string) (windowHit, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v := rl.visitors[key]
	if v == nil || !now.Before(v.resetTime) {
		if len(rl.visitors) >= sweepThreshold {
			rl.sweep(now)
		}
		v = &visitor{resetTime: now.Add(rl.window)}
		rl.visitors[key] = v
	}
	v.count++
	return windowHit{count: v.count, resetIn: v.resetTime.Sub(now)}, nil
}

func (rl *RateLimiter) sweep(now time.Time) {
	for key, v := range rl.visitors {
		if !now.Before(v.resetTime) {
			delete(rl.visitors, key)
		}
	}
}

// clientKey buckets requests per tenant and caller address.
func clientKey(r *http.Request) string {
	addr := r.RemoteAddr
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		addr = strings.TrimSpace(strings.Split(fwd, ",")[0])
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		addr = host
	}
	if tenant := strings.TrimSpace(r.Header.Get(TenantHeader)); tenant != "" {
		return tenant + ":" + addr
	}
	return addr
}
