package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window rate limiter backed by Redis, shared by
// every booking-service replica.
type RedisRateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// The script returns the request count in the current window and the window's
// remaining time in milliseconds.
var redisWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

func NewRedisRateLimiter(rdb *redis.Client, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window < time.Millisecond {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "groomly:rl"
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix}
}

func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return limitRequests(rl.limit, rl.hit, logger, failOpen)
}

func (rl *RedisRateLimiter) hit(ctx context.Context, key string) (windowHit, error) {
	vals, err := redisWindowScript.Run(ctx, rl.rdb, []string{rl.prefix + ":" + key}, rl.window.Milliseconds()).Int64Slice()
	if err != nil {
		return windowHit{}, err
	}
	if len(vals) != 2 {
		return windowHit{}, fmt.Errorf("rate limit script returned %d values", len(vals))
	}
	return windowHit{count: vals[0], resetIn: time.Duration(vals[1]) * time.Millisecond}, nil
}
