package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/custodia-pay/custodia/internal/redis"
)

// Limiter is implemented by the redis client.
type Limiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (*redis.RateLimitResult, error)
}

type RateLimit struct {
	limiter Limiter
	limit   int64
	window  time.Duration
}

func NewRateLimit(limiter Limiter, limit int64, window time.Duration) *RateLimit {
	return &RateLimit{
		limiter: limiter,
		limit:   limit,
		window:  window,
	}
}

// Limit throttles per client IP. Redis trouble fails open: dropping valid
// escrow traffic is worse than letting a burst through.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		result, err := rl.limiter.CheckRateLimit(r.Context(), "ip:"+ip, rl.limit, rl.window)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(rl.limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		if !result.Allowed {
			w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(result.ResetAt).Seconds())+1, 10))
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
