package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Limiter counts hits per key in fixed windows. retryAfter is only meaningful when allowed is false.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a per-process fixed-window counter.
type MemoryLimiter struct {
	limit  int
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, period: period, now: time.Now, windows: map[string]*window{}}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		l.prune(now)
		w = &window{resetAt: now.Add(l.period)}
		l.windows[key] = w
	}
	if w.count >= l.limit {
		return false, w.resetAt.Sub(now), nil
	}
	w.count++
	return true, 0, nil
}

// prune drops elapsed windows so idle clients do not accumulate.
func (l *MemoryLimiter) prune(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}

// windowScript increments the counter and arms the window TTL in one step. A key left
// without a TTL gets one on its next hit.
var windowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// RedisLimiter shares the window across instances.
type RedisLimiter struct {
	c      *redis.Client
	prefix string
	limit  int
	period time.Duration
}

func NewRedisLimiter(c *redis.Client, prefix string, limit int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{c: c, prefix: prefix, limit: limit, period: period}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	reply, err := windowScript.Run(ctx, l.c, []string{l.prefix + key}, l.period.Milliseconds()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis rate window: %w", err)
	}
	res, ok := reply.([]interface{})
	if !ok || len(res) != 2 {
		return false, 0, fmt.Errorf("redis rate window: unexpected reply %v", reply)
	}
	n, _ := res[0].(int64)
	ttlMs, _ := res[1].(int64)
	if n > int64(l.limit) {
		ttl := time.Duration(ttlMs) * time.Millisecond
		if ttl <= 0 {
			ttl = l.period
		}
		return false, ttl, nil
	}
	return true, 0, nil
}

// RateLimit limits requests per client IP. A limiter error lets the request through.
func RateLimit(l Limiter, message string, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		ok, retryAfter, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warn("[ratelimit] limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			secs := int(math.Ceil(retryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			abort(c, http.StatusTooManyRequests, message)
			return
		}
		c.Next()
	}
}
