package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/class-seat-booking/internal/config"
	"github.com/iliyamo/class-seat-booking/internal/utils"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func serve(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func ok(c echo.Context) error { return c.JSON(http.StatusOK, echo.Map{"ok": true}) }

func TestJWTAuthAndRequireRole(t *testing.T) {
	e := echo.New()
	g := e.Group("/admin", JWTAuth("k"), RequireRole(RoleAdmin))
	g.GET("", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get(CtxSubject).(string))
	})

	admin, err := utils.NewAccessToken("k", "ops", RoleAdmin, time.Minute)
	require.NoError(t, err)
	service, err := utils.NewAccessToken("k", "svc", RoleService, time.Minute)
	require.NoError(t, err)
	forged, err := utils.NewAccessToken("other", "ops", RoleAdmin, time.Minute)
	require.NoError(t, err)
	expired, err := utils.NewAccessToken("k", "ops", RoleAdmin, -time.Minute)
	require.NoError(t, err)

	rec := serve(e, http.MethodGet, "/admin", admin.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops", rec.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin", service.Token).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/admin", forged.Token).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/admin", expired.Token).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/admin", "").Code)
}

func TestTokenBucket_BlocksAfterCapacity(t *testing.T) {
	rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: 2 * time.Hour, KeyStrategy: "ip_route", Prefix: "rl",
	}
	e := echo.New()
	e.POST("/v1/bookings", ok, NewTokenBucket(cfg, rdb, zaptest.NewLogger(t)))

	assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/v1/bookings", "").Code)
	rec := serve(e, http.MethodPost, "/v1/bookings", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serve(e, http.MethodPost, "/v1/bookings", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestTokenBucket_PassesThroughWithoutRedis(t *testing.T) {
	e := echo.New()
	e.POST("/x", ok, NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, nil))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/x", "").Code)
	}
}

func TestRedisCache_HitAfterMissAndPurge(t *testing.T) {
	rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute,
		KeyStrategy: "route_query", Prefix: "cache:classes", MaxBodyBytes: 1 << 20,
	}
	var calls atomic.Int64
	e := echo.New()
	e.GET("/v1/classes", func(c echo.Context) error {
		calls.Add(1)
		return c.JSON(http.StatusOK, echo.Map{"n": calls.Load()})
	}, NewRedisCache(cfg, rdb, nil))
	e.POST("/v1/classes", ok, PurgeOnWrite(cfg, rdb, nil))

	first := serve(e, http.MethodGet, "/v1/classes", "")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := serve(e, http.MethodGet, "/v1/classes", "")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.EqualValues(t, 1, calls.Load())

	assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/v1/classes", "").Code)
	third := serve(e, http.MethodGet, "/v1/classes", "")
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.EqualValues(t, 2, calls.Load())
	assert.True(t, strings.Contains(third.Body.String(), `"n":2`))
}

func TestCachePurger_DropsCachedResponses(t *testing.T) {
	rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute,
		KeyStrategy: "route_query", Prefix: "cache:classes", MaxBodyBytes: 1 << 20,
	}
	e := echo.New()
	e.GET("/v1/classes", ok, NewRedisCache(cfg, rdb, nil))

	assert.Equal(t, "MISS", serve(e, http.MethodGet, "/v1/classes", "").Header().Get("X-Cache"))
	assert.Equal(t, "HIT", serve(e, http.MethodGet, "/v1/classes", "").Header().Get("X-Cache"))

	purge := CachePurger(cfg, rdb, nil)
	require.NotNil(t, purge)
	purge(context.Background(), "c1")
	assert.Equal(t, "MISS", serve(e, http.MethodGet, "/v1/classes", "").Header().Get("X-Cache"))

	cfg.Enabled = false
	assert.Nil(t, CachePurger(cfg, rdb, nil))
	assert.Nil(t, CachePurger(config.CacheConfig{Enabled: true}, nil, nil))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload(bs[:5])
	assert.False(t, ok)
}
