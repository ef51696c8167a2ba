package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/iliyamo/video-share-api/internal/config"
)

const rateLimitMessage = "Too many requests, please try again later."

// fixedWindowScript counts a request in the current window and returns the
// count together with the milliseconds left in the window.
var fixedWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return { n, ttl }
`)

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// NewRateLimiter admits cfg.Limit requests per cfg.Window for each key.  The
// counters live in Redis so every instance shares them; without a Redis
// client an in-process limiter takes over.  Redis errors fail open.
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return passthrough
	}
	if log == nil {
		log = zap.NewNop()
	}
	if rdb == nil {
		return newLocalLimiter(cfg).middleware
	}

	window := cfg.Window.Milliseconds()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			vals, err := fixedWindowScript.Run(c.Request().Context(), rdb, []string{key}, window).Int64Slice()
			if err != nil || len(vals) != 2 {
				log.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
				return next(c)
			}
			count, ttlMs := vals[0], vals[1]

			remaining := int64(cfg.Limit) - count
			if remaining < 0 {
				remaining = 0
			}
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}

			if count > int64(cfg.Limit) {
				secs := int(math.Ceil(float64(ttlMs) / 1000.0))
				h.Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					log.Info("rate limit block", zap.String("key", key), zap.Int64("count", count))
				}
				return echo.NewHTTPError(http.StatusTooManyRequests, rateLimitMessage)
			}
			return next(c)
		}
	}
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := []string{cfg.Prefix}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := currentUserID(c)
	route := c.Request().Method + " " + c.Path()

	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}

// localLimiter is the single-instance fallback.  Each key gets a token
// bucket refilled at Limit per Window with a burst of Limit, which admits
// the same sustained rate as the fixed window.
type localLimiter struct {
	cfg config.RateLimitConfig

	mu       sync.Mutex
	limiters map[string]*localEntry
	sweepAt  time.Time
}

type localEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLocalLimiter(cfg config.RateLimitConfig) *localLimiter {
	return &localLimiter{cfg: cfg, limiters: map[string]*localEntry{}, sweepAt: time.Now().Add(cfg.Window)}
}

func (l *localLimiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		for k, e := range l.limiters {
			if now.Sub(e.seen) > l.cfg.Window {
				delete(l.limiters, k)
			}
		}
		l.sweepAt = now.Add(l.cfg.Window)
	}

	e, ok := l.limiters[key]
	if !ok {
		every := l.cfg.Window / time.Duration(l.cfg.Limit)
		e = &localEntry{lim: rate.NewLimiter(rate.Every(every), l.cfg.Limit)}
		l.limiters[key] = e
	}
	e.seen = now
	return e.lim
}

func (l *localLimiter) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		now := time.Now()
		lim := l.get(buildRateKey(l.cfg, c), now)
		h := c.Response().Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Limit))

		r := lim.ReserveN(now, 1)
		if delay := r.DelayFrom(now); delay > 0 {
			r.CancelAt(now)
			h.Set("X-RateLimit-Remaining", "0")
			h.Set("Retry-After", fmt.Sprint(int(math.Ceil(delay.Seconds()))))
			return echo.NewHTTPError(http.StatusTooManyRequests, rateLimitMessage)
		}
		h.Set("X-RateLimit-Remaining", strconv.Itoa(int(lim.TokensAt(now))))
		return next(c)
	}
}
