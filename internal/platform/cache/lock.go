package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained is returned when the lock stays held past the retry budget.
var ErrLockNotObtained = errors.New("platform/cache: lock not obtained")

// RedisLocker hands out Redis-backed locks shared across service replicas.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker builds a locker. ttl bounds how long a crashed holder keeps
// the key; wait bounds how long Lock retries before giving up.
func NewRedisLocker(client redis.UniversalClient, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisLocker{client: redislock.New(client), ttl: ttl, wait: wait}
}

// Lock obtains key, retrying with a linear backoff until wait elapses.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrLockNotObtained, key)
		}
		return nil, fmt.Errorf("platform/cache: obtain lock: %w", err)
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
