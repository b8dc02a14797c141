// ratelimit.go implements request throttling: a per-process, per-IP token
// bucket for the whole API and a Redis fixed-window counter shared across
// replicas for credential endpoints.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// rateLimitMessage is shown on every 429.
const rateLimitMessage = "too many requests from this IP, please try again later"

// ipLimiter hands out one token bucket per client IP. Idle buckets are
// pruned lazily on the request path, so no background goroutine is needed.
type ipLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*ipEntry
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastPrune time.Time
	now       func() time.Time
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(maxRequests int, window time.Duration, now func() time.Time) *ipLimiter {
	return &ipLimiter{
		limiters: make(map[string]*ipEntry),
		limit:    rate.Every(window / time.Duration(maxRequests)),
		burst:    maxRequests,
		idle:     window,
		now:      now,
	}
}

// allow reports whether ip may make another request now.
func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) > l.idle {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > l.idle {
				delete(l.limiters, k)
			}
		}
		l.lastPrune = now
	}

	e, ok := l.limiters[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// size returns the number of tracked IPs.
func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RateLimit returns middleware that allows each IP maxRequests per window,
// refilled smoothly. Returns 429 when exceeded.
func RateLimit(maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return rateLimit(newIPLimiter(maxRequests, window, time.Now))
}

func rateLimit(l *ipLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.allow(c.RealIP()) {
				return apperror.NewTooManyRequests(rateLimitMessage)
			}
			return next(c)
		}
	}
}

// SharedRateLimit returns middleware that counts requests per IP in Redis
// with a fixed window, so every replica enforces one budget. If Redis is
// unavailable the request is let through and the failure logged.
func SharedRateLimit(rdb *redis.Client, name string, maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := fmt.Sprintf("ratelimit:%s:%s", name, c.RealIP())

			count, ttl, err := hit(c.Request().Context(), rdb, key, window)
			if err != nil {
				slog.Warn("shared rate limit unavailable",
					slog.String("limiter", name),
					slog.Any("error", err),
				)
				return next(c)
			}

			if count > int64(maxRequests) {
				if ttl > 0 {
					c.Response().Header().Set("Retry-After", strconv.Itoa(int(ttl.Round(time.Second)/time.Second)))
				}
				return apperror.NewTooManyRequests(rateLimitMessage)
			}
			return next(c)
		}
	}
}

// hit increments the counter at key, starting the window on first use, and
// returns the new count and the time left in the window.
func hit(ctx context.Context, rdb *redis.Client, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("incrementing %s: %w", key, err)
	}
	if count == 1 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("expiring %s: %w", key, err)
		}
		return count, window, nil
	}

	ttl, err := rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("reading ttl of %s: %w", key, err)
	}
	// A key without expiry (lost EXPIRE) would block the IP forever.
	if ttl < 0 {
		_ = rdb.Expire(ctx, key, window).Err()
		ttl = window
	}
	return count, ttl, nil
}
