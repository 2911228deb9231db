package redis

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLockHeld is returned when another owner already holds the lock.
var ErrLockHeld = errors.New("lock already held")

// Lock is a held distributed lock. The release path takes one per
// transaction so a manual validation, a scheduler sweep and a dispute
// resolution never move the same funds concurrently.
type Lock struct {
	client *Client
	key    string
	value  string
}

// AcquireLock attempts to take the lock for at most ttl. The TTL bounds how
// long a crashed holder can block the other release triggers.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	prefixedKey := c.prefixKey("lock:" + key)
	value := fmt.Sprintf("%d", time.Now().UnixNano())

	ok, err := c.rdb.SetNX(ctx, prefixedKey, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !ok {
		return nil, ErrLockHeld
	}

	return &Lock{
		client: c,
		key:    prefixedKey,
		value:  value,
	}, nil
}

// Release releases the lock if it is still held by the owner. A release
// that outlived its TTL must not delete the next holder's lock.
func (l *Lock) Release(ctx context.Context) error {
	script := `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
	`
	_, err := l.client.rdb.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}
