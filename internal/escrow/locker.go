package escrow

import (
	"context"
	"time"

	"github.com/custodia-pay/custodia/internal/redis"
)

type redisLocker struct {
	client *redis.Client
}

// NewRedisLocker adapts the redis client to the Locker interface used by the
// release path.
func NewRedisLocker(client *redis.Client) Locker {
	return &redisLocker{client: client}
}

func (l *redisLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (ReleaseLock, error) {
	lock, err := l.client.AcquireLock(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}
