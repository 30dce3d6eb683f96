package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiter(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisLimiter(rdb, "grl"), mr
}

func TestRedisLimiterBudgetAndRejection(t *testing.T) {
	l, _ := newRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "client", "/auth", time.Minute, 3)
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d rejected within budget", i+1)
		}
	}

	res, err := l.Allow(ctx, "client", "/auth", time.Minute, 3)
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("4th request allowed over budget")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Fatalf("RetryAfter = %v", res.RetryAfter)
	}
}

func TestRedisLimiterWindowExpiry(t *testing.T) {
	l, mr := newRedisLimiter(t)
	ctx := context.Background()

	l.Allow(ctx, "c", "/e", 30*time.Second, 1)
	if res, _ := l.Allow(ctx, "c", "/e", 30*time.Second, 1); res.Allowed {
		t.Fatal("second request allowed with max=1")
	}

	mr.FastForward(31 * time.Second)

	res, err := l.Allow(ctx, "c", "/e", 30*time.Second, 1)
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !res.Allowed {
		t.Fatal("request rejected after window expired")
	}
}

func TestRedisLimiterBackendDownFailsClosed(t *testing.T) {
	l, mr := newRedisLimiter(t)
	mr.Close()

	_, err := l.Allow(context.Background(), "c", "/e", time.Minute, 5)
	if err == nil {
		t.Fatal("expected backend error when redis is down")
	}
}
