package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/video-share-api/internal/config"
)

func limitedServer(mw echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") }, mw)
	return e
}

func hit(e *echo.Echo, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_RedisFixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := config.RateLimitConfig{Enabled: true, Limit: 2, Window: time.Minute, KeyStrategy: "ip", Prefix: "rl"}
	e := limitedServer(NewRateLimiter(cfg, rdb, nil))

	require.Equal(t, http.StatusOK, hit(e, "10.0.0.1").Code)
	rec := hit(e, "10.0.0.1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = hit(e, "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))

	// another client has its own window
	require.Equal(t, http.StatusOK, hit(e, "10.0.0.2").Code)

	mr.FastForward(time.Minute)
	require.Equal(t, http.StatusOK, hit(e, "10.0.0.1").Code)
}

func TestRateLimiter_RedisDownFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	cfg := config.RateLimitConfig{Enabled: true, Limit: 1, Window: time.Minute, KeyStrategy: "ip", Prefix: "rl"}
	e := limitedServer(NewRateLimiter(cfg, rdb, nil))
	mr.Close()

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, hit(e, "10.0.0.1").Code)
	}
}

func TestRateLimiter_LocalFallback(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Limit: 2, Window: time.Hour, KeyStrategy: "ip", Prefix: "rl"}
	e := limitedServer(NewRateLimiter(cfg, nil, nil))

	require.Equal(t, http.StatusOK, hit(e, "10.0.0.1").Code)
	require.Equal(t, http.StatusOK, hit(e, "10.0.0.1").Code)
	rec := hit(e, "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, http.StatusOK, hit(e, "10.0.0.9").Code)
}

func TestRateLimiter_Disabled(t *testing.T) {
	e := limitedServer(NewRateLimiter(config.RateLimitConfig{Enabled: false, Limit: 1, Window: time.Minute}, nil, nil))
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, hit(e, "10.0.0.1").Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", nil)
	req.RemoteAddr = "1.2.3.4:5"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/users/login")

	require.Equal(t, "rl:auth:ip:1.2.3.4:route:POST /api/v1/users/login",
		buildRateKey(config.RateLimitConfig{Prefix: "rl:auth", KeyStrategy: "ip_route"}, c))
	require.Equal(t, "p:user:anon", buildRateKey(config.RateLimitConfig{Prefix: "p", KeyStrategy: "user"}, c))
}
