package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/naavyaj-29/DormDash/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status   int
	buf      bytes.Buffer
	size     int64
	limit    int64
	overflow bool
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.size += int64(len(b))
	if cw.limit > 0 && cw.size > cw.limit {
		cw.overflow = true
	} else {
		cw.buf.Write(b)
	}
	return cw.ResponseWriter.Write(b)
}

// cacheKeyFrom builds a stable cache key honoring prefix and strategy.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	parts := []string{}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		parts = append(parts, "route", c.Path())
	case "method_route":
		parts = append(parts, "method", r.Method, "route", c.Path())
	default: // "route_query"
		parts = append(parts, "route", c.Path(), "q", r.URL.RawQuery)
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum[:])
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}

// storeIfCurrentScript writes a cache entry only while the generation
// counter still holds the value read before the handler ran. A write that
// invalidated the cache in the meantime bumps the counter and the stale body
// is dropped.
var storeIfCurrentScript = redis.NewScript(`
    local gen = redis.call('GET', KEYS[1]) or '0'
    if gen ~= ARGV[1] then
        return 0
    end
    redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
    return 1
`)

// generationKey sits outside the prefix:* keyspace so invalidation never
// deletes it.
func generationKey(prefix string) string { return prefix + "-gen" }

// cacheGeneration returns the current counter, "0" when it was never set.
func cacheGeneration(ctx context.Context, rdb *redis.Client, prefix string) (string, error) {
	gen, err := rdb.Get(ctx, generationKey(prefix)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

// NewRedisCache caches successful responses to cacheable methods (the meal
// listing) and drops the whole cache after any successful write. A listing
// that was computed while such a write committed is served but not stored,
// so clients never read a servings count older than their own reservation.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log *logrus.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	maxBody := int64(cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			method := strings.ToUpper(c.Request().Method)
			if !cfg.Methods[method] {
				err := next(c)
				if err == nil && isWrite(method) && c.Response().Status < 300 {
					if n, ierr := invalidate(c.Request().Context(), rdb, cfg.Prefix); ierr != nil {
						log.WithError(ierr).Warn("cache: invalidation failed")
					} else if n > 0 {
						log.WithField("keys", n).Debug("cache: invalidated")
					}
				}
				return err
			}

			ctx := c.Request().Context()
			key := cacheKeyFrom(cfg, c)

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					c.Response().Header().Set("X-Cache", "HIT")
					return c.Blob(status, hdr.Get(echo.HeaderContentType), body)
				}
			}

			gen, genErr := cacheGeneration(ctx, rdb, cfg.Prefix)

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if genErr != nil || cw.status != http.StatusOK || cw.overflow {
				return nil
			}
			// only the content type is replayed; rate limit headers are per request
			hdr := http.Header{}
			hdr.Set(echo.HeaderContentType, c.Response().Header().Get(echo.HeaderContentType))
			payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
			if err != nil {
				return nil
			}
			stored, err := storeIfCurrentScript.Run(context.WithoutCancel(ctx), rdb,
				[]string{generationKey(cfg.Prefix), key}, gen, payload, ttl.Milliseconds()).Int()
			if err != nil {
				log.WithError(err).Warn("cache: store failed")
			} else if stored == 0 {
				log.WithField("key", key).Debug("cache: skipped store after concurrent invalidation")
			}
			return nil
		}
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// invalidate bumps the generation counter, then deletes every key under
// prefix and reports how many it found. The bump must precede the delete:
// a listing still in flight checks it before storing.
func invalidate(ctx context.Context, rdb *redis.Client, prefix string) (int, error) {
	ctx = context.WithoutCancel(ctx)
	if err := rdb.Incr(ctx, generationKey(prefix)).Err(); err != nil {
		return 0, err
	}
	var keys []string
	iter := rdb.Scan(ctx, 0, prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return len(keys), rdb.Del(ctx, keys...).Err()
}
