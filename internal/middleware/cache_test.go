package middleware

import (
	"context"
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

func cachedServer(t *testing.T) (*echo.Echo, *ResponseCache, *int) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc := NewResponseCache(config.CacheConfig{
		Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 1 << 10,
	}, rdb, nil)

	calls := 0
	e := echo.New()
	e.GET("/users/:id", func(c echo.Context) error {
		calls++
		if c.Param("id") == "missing" {
			return c.JSON(http.StatusNotFound, echo.Map{"success": false})
		}
		return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id"), "n": calls})
	}, rc.Middleware())
	return e, rc, &calls
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestResponseCache_HitAndPurge(t *testing.T) {
	e, rc, calls := cachedServer(t)

	first := get(e, "/users/u1")
	require.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := get(e, "/users/u1")
	require.Equal(t, "HIT", second.Header().Get("X-Cache"))
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Equal(t, first.Header().Get(echo.HeaderContentType), second.Header().Get(echo.HeaderContentType))
	require.Equal(t, 1, *calls)

	// query variants are separate entries of the same path
	get(e, "/users/u1?x=1")
	require.Equal(t, 2, *calls)

	rc.Purge(context.Background(), "/users/u1")
	require.Equal(t, "MISS", get(e, "/users/u1").Header().Get("X-Cache"))
	require.Equal(t, "MISS", get(e, "/users/u1?x=1").Header().Get("X-Cache"))
	require.Equal(t, 4, *calls)
}

func TestResponseCache_SkipsErrors(t *testing.T) {
	e, _, calls := cachedServer(t)
	get(e, "/users/missing")
	rec := get(e, "/users/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, 2, *calls)
}

func TestResponseCache_DisabledPurgeIsSafe(t *testing.T) {
	rc := NewResponseCache(config.CacheConfig{Enabled: true}, nil, nil)
	rc.Purge(context.Background(), "/users/x")

	var nilCache *ResponseCache
	nilCache.Purge(context.Background(), "/users/x")
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(201, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	require.Equal(t, 201, status)
	require.Equal(t, hdr, got)
	require.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	require.False(t, ok)
}
