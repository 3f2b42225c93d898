package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naavyaj-29/DormDash/internal/config"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func quietLogger() *logrus.Logger {
	log, _ := logtest.NewNullLogger()
	return log
}

func serve(e *echo.Echo, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// cachedEntries lists stored responses, leaving out the generation counter.
func cachedEntries(mr *miniredis.Miniredis) []string {
	var out []string
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "cache:") {
			out = append(out, k)
		}
	}
	return out
}

func TestTokenBucketBlocksWhenEmpty(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1,
		RefillInterval: time.Hour, TTL: time.Hour, KeyStrategy: "ip_route", Prefix: "rl",
	}
	e := echo.New()
	e.GET("/api/meals", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		NewTokenBucket(cfg, rdb, quietLogger()))

	first := serve(e, http.MethodGet, "/api/meals", nil)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/api/meals", nil).Code)

	blocked := serve(e, http.MethodGet, "/api/meals", nil)
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
	assert.Contains(t, blocked.Body.String(), "Too many requests")

	// another client has its own bucket
	other := serve(e, http.MethodGet, "/api/meals", map[string]string{echo.HeaderXRealIP: "10.0.0.9"})
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestTokenBucketFailsOpen(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour, TTL: time.Hour, Prefix: "rl"}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, rdb, quietLogger()))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/x", nil).Code)
	}
}

func TestTokenBucketDisabledWithoutRedis(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, nil, quietLogger()))

	for i := 0; i < 3; i++ {
		rec := serve(e, http.MethodGet, "/x", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRedisCacheHitAndInvalidate(t *testing.T) {
	mr, rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true},
		TTL: time.Minute, KeyStrategy: "route_query", Prefix: "cache", MaxBodyBytes: 1 << 20,
	}
	cache := NewRedisCache(cfg, rdb, quietLogger())

	var listCalls atomic.Int32
	left := 3
	e := echo.New()
	e.GET("/api/meals", func(c echo.Context) error {
		listCalls.Add(1)
		return c.JSON(http.StatusOK, []map[string]int{{"servingsLeft": left}})
	}, cache)
	e.PATCH("/api/meals/:id/reserve", func(c echo.Context) error {
		left--
		return c.JSON(http.StatusOK, map[string]int{"servingsLeft": left})
	}, cache)

	miss := serve(e, http.MethodGet, "/api/meals", nil)
	assert.Equal(t, "MISS", miss.Header().Get("X-Cache"))
	assert.JSONEq(t, `[{"servingsLeft":3}]`, miss.Body.String())

	hit := serve(e, http.MethodGet, "/api/meals", nil)
	assert.Equal(t, "HIT", hit.Header().Get("X-Cache"))
	assert.Equal(t, http.StatusOK, hit.Code)
	assert.Contains(t, hit.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
	assert.JSONEq(t, miss.Body.String(), hit.Body.String())
	assert.EqualValues(t, 1, listCalls.Load())
	require.Len(t, cachedEntries(mr), 1)

	assert.Equal(t, http.StatusOK, serve(e, http.MethodPatch, "/api/meals/abc/reserve", nil).Code)
	assert.Empty(t, cachedEntries(mr))

	fresh := serve(e, http.MethodGet, "/api/meals", nil)
	assert.Equal(t, "MISS", fresh.Header().Get("X-Cache"))
	assert.JSONEq(t, `[{"servingsLeft":2}]`, fresh.Body.String())
	assert.EqualValues(t, 2, listCalls.Load())
}

func TestRedisCacheDropsListingComputedDuringReservation(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true},
		TTL: time.Minute, KeyStrategy: "route_query", Prefix: "cache", MaxBodyBytes: 1 << 20,
	}
	cache := NewRedisCache(cfg, rdb, quietLogger())

	var mu sync.Mutex
	left := 1
	readDone := make(chan struct{})
	release := make(chan struct{})
	var blockNext atomic.Bool
	blockNext.Store(true)

	e := echo.New()
	e.GET("/api/meals", func(c echo.Context) error {
		mu.Lock()
		snapshot := left
		mu.Unlock()
		if blockNext.CompareAndSwap(true, false) {
			close(readDone)
			<-release
		}
		return c.JSON(http.StatusOK, []map[string]int{{"servingsLeft": snapshot}})
	}, cache)
	e.PATCH("/api/meals/:id/reserve", func(c echo.Context) error {
		mu.Lock()
		left--
		snapshot := left
		mu.Unlock()
		return c.JSON(http.StatusOK, map[string]int{"servingsLeft": snapshot})
	}, cache)

	slow := make(chan *httptest.ResponseRecorder, 1)
	go func() { slow <- serve(e, http.MethodGet, "/api/meals", nil) }()

	<-readDone
	require.Equal(t, http.StatusOK, serve(e, http.MethodPatch, "/api/meals/abc/reserve", nil).Code)
	close(release)

	inFlight := <-slow
	assert.JSONEq(t, `[{"servingsLeft":1}]`, inFlight.Body.String())

	next := serve(e, http.MethodGet, "/api/meals", nil)
	assert.Equal(t, "MISS", next.Header().Get("X-Cache"))
	assert.JSONEq(t, `[{"servingsLeft":0}]`, next.Body.String())

	cached := serve(e, http.MethodGet, "/api/meals", nil)
	assert.Equal(t, "HIT", cached.Header().Get("X-Cache"))
	assert.JSONEq(t, `[{"servingsLeft":0}]`, cached.Body.String())
}

func TestRedisCacheSkipsErrorsAndFailedWrites(t *testing.T) {
	mr, rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute, Prefix: "cache"}
	cache := NewRedisCache(cfg, rdb, quietLogger())

	e := echo.New()
	e.GET("/broken", func(c echo.Context) error {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}, cache)
	e.PATCH("/sold-out", func(c echo.Context) error {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Sold out"})
	}, cache)

	serve(e, http.MethodGet, "/broken", nil)
	assert.Empty(t, cachedEntries(mr))

	require.NoError(t, mr.Set("cache:keep", "x"))
	serve(e, http.MethodPatch, "/sold-out", nil)
	assert.True(t, mr.Exists("cache:keep"))
}

func TestCORSAndPreflight(t *testing.T) {
	e := echo.New()
	e.Pre(CORS("*"), Preflight)
	e.GET("/api/meals", func(c echo.Context) error { return c.String(http.StatusOK, "[]") })

	pre := serve(e, http.MethodOptions, "/api/meals/123/reserve", map[string]string{
		"Origin":                        "http://localhost:5173",
		"Access-Control-Request-Method": http.MethodPatch,
	})
	assert.Equal(t, http.StatusNoContent, pre.Code)
	assert.Equal(t, "*", pre.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, pre.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)

	bare := serve(e, http.MethodOptions, "/anything/at/all", nil)
	assert.Equal(t, http.StatusNoContent, bare.Code)
	assert.Empty(t, bare.Body.String())

	get := serve(e, http.MethodGet, "/api/meals", map[string]string{"Origin": "http://localhost:5173"})
	assert.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, "*", get.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestLoggerLevels(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	e := echo.New()
	e.Use(RequestLogger(log))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusInternalServerError) })

	serve(e, http.MethodGet, "/ok", nil)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, http.StatusOK, hook.LastEntry().Data["status"])

	rec := serve(e, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "/boom", hook.LastEntry().Data["path"])
}
