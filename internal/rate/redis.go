package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements the fixed-window contract on shared Redis counters
// so that multiple instances count against one budget.
type RedisLimiter struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisLimiter creates a limiter on the given client. Keys are namespaced
// under prefix (default "grl").
func NewRedisLimiter(redisClient redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "grl"
	}
	return &RedisLimiter{redis: redisClient, prefix: prefix}
}

func (l *RedisLimiter) key(clientID, endpoint string) string {
	return l.prefix + ":" + limiterKey(clientID, endpoint)
}

// Allow counts one request via INCR. The TTL is set only on the first hit in
// a window, which gives fixed-window semantics without a read-then-write
// race between concurrent requests.
func (l *RedisLimiter) Allow(ctx context.Context, clientID, endpoint string, windowSize time.Duration, max int) (Result, error) {
	if windowSize <= 0 || max <= 0 {
		return Result{Allowed: true, Remaining: 0}, nil
	}

	key := l.key(clientID, endpoint)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, windowSize).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	if count > int64(max) {
		ttl, err := l.redis.PTTL(ctx, key).Result()
		if err != nil || ttl <= 0 {
			ttl = windowSize
		}
		return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter(ttl)}, nil
	}

	return Result{Allowed: true, Remaining: max - int(count)}, nil
}
