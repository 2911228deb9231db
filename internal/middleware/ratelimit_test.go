package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/custodia-pay/custodia/internal/redis"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type fakeLimiter struct {
	result *redis.RateLimitResult
	err    error
	keys   []string
}

func (f *fakeLimiter) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (*redis.RateLimitResult, error) {
	f.keys = append(f.keys, key)
	return f.result, f.err
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	limiter := &fakeLimiter{result: &redis.RateLimitResult{Allowed: true, Remaining: 9, ResetAt: time.Now().Add(time.Minute)}}
	rl := NewRateLimit(limiter, 10, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
	req.RemoteAddr = "203.0.113.7:49152"
	rec := httptest.NewRecorder()

	rl.Limit(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, []string{"ip:203.0.113.7"}, limiter.keys)
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	limiter := &fakeLimiter{result: &redis.RateLimitResult{Allowed: false, Remaining: 0, ResetAt: time.Now().Add(30 * time.Second)}}
	rl := NewRateLimit(limiter, 10, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
	req.RemoteAddr = "203.0.113.7:49152"
	rec := httptest.NewRecorder()

	rl.Limit(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitFailsOpenOnRedisError(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	rl := NewRateLimit(limiter, 10, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
	req.RemoteAddr = "203.0.113.7:49152"
	rec := httptest.NewRecorder()

	rl.Limit(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitNilLimiterPassesThrough(t *testing.T) {
	rl := NewRateLimit(nil, 10, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	rl.Limit(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
