package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"retailpos/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ── Fixed-window limiter ──────────────────────────────────────────────────────
// Counters live in Redis (INCR + EXPIRE on the first hit of a window) so every
// API instance shares them. Without a Redis client the limiter keeps its
// windows in process memory. A Redis outage never blocks traffic: the request
// is let through and the failure logged.

type windowStore interface {
	// hit increments the caller's counter and returns the count plus the
	// time left in the current window.
	hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type redisWindows struct{ rdb *redis.Client }

func (s redisWindows) hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	left := ttl.Val()
	if left < 0 {
		left = window
	}
	return incr.Val(), left, nil
}

type memEntry struct {
	count     int64
	windowEnd time.Time
}

type memWindows struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	lastGC  time.Time
}

func newMemWindows() *memWindows {
	return &memWindows{entries: make(map[string]*memEntry)}
}

func (s *memWindows) hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Sub(s.lastGC) > 5*time.Minute {
		for k, e := range s.entries {
			if now.After(e.windowEnd) {
				delete(s.entries, k)
			}
		}
		s.lastGC = now
	}

	e, ok := s.entries[key]
	if !ok || now.After(e.windowEnd) {
		e = &memEntry{windowEnd: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, e.windowEnd.Sub(now), nil
}

func limiter(store windowStore, scope string, limit int, window time.Duration, msg string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		key := "ratelimit:" + scope + ":" + c.ClientIP()
		count, left, err := store.hit(c.Request.Context(), key, window)
		if err != nil {
			log.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if count > int64(limit) {
			secs := int(left.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New(apierror.CodeRateLimited, msg))
			return
		}
		c.Next()
	}
}

func storeFor(rdb *redis.Client) windowStore {
	if rdb == nil {
		return newMemWindows()
	}
	return redisWindows{rdb: rdb}
}

// RateLimiter limits every client IP to limit requests per window.
func RateLimiter(rdb *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return limiter(storeFor(rdb), "api", limit, window,
		"Demasiadas solicitudes. Intente nuevamente en un momento.")
}

// LoginRateLimiter allows 20 login attempts per minute per IP.
func LoginRateLimiter(rdb *redis.Client) gin.HandlerFunc {
	return limiter(storeFor(rdb), "login", 20, time.Minute,
		"Demasiados intentos de login. Intente en 1 minuto.")
}
