package rate

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestLimiter(start time.Time) (*MemoryLimiter, *time.Time) {
	l := NewMemoryLimiter()
	now := start
	l.now = func() time.Time { return now }
	return l, &now
}

func TestMemoryLimiterBudgetExactlyMax(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1700000000, 0))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := l.Allow(ctx, "client-a", "/api/data", time.Minute, 5)
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d rejected within budget", i+1)
		}
		if res.Remaining != 5-(i+1) {
			t.Fatalf("request %d: remaining = %d, want %d", i+1, res.Remaining, 5-(i+1))
		}
	}

	res, err := l.Allow(ctx, "client-a", "/api/data", time.Minute, 5)
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("6th request allowed over budget")
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("rejected request has RetryAfter %v", res.RetryAfter)
	}
}

func TestMemoryLimiterWindowReset(t *testing.T) {
	l, now := newTestLimiter(time.Unix(1700000000, 0))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.Allow(ctx, "c", "/e", time.Minute, 2); err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
	}

	res, _ := l.Allow(ctx, "c", "/e", time.Minute, 2)
	if res.Allowed {
		t.Fatal("over-budget request allowed before reset")
	}

	*now = now.Add(time.Minute + time.Second)

	res, _ = l.Allow(ctx, "c", "/e", time.Minute, 2)
	if !res.Allowed {
		t.Fatal("request rejected after window elapsed")
	}
	if res.Remaining != 1 {
		t.Fatalf("fresh window remaining = %d, want 1", res.Remaining)
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Unix(1700000000, 0))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := l.Allow(ctx, "c1", "/login", time.Minute, 2); err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
	}
	if res, _ := l.Allow(ctx, "c1", "/login", time.Minute, 2); res.Allowed {
		t.Fatal("expected c1:/login to be exhausted")
	}

	if res, _ := l.Allow(ctx, "c2", "/login", time.Minute, 2); !res.Allowed {
		t.Fatal("different client shares a window")
	}
	if res, _ := l.Allow(ctx, "c1", "/data", time.Minute, 2); !res.Allowed {
		t.Fatal("different endpoint shares a window")
	}
}

func TestMemoryLimiterRetryAfterWholeSeconds(t *testing.T) {
	l, now := newTestLimiter(time.Unix(1700000000, 0))
	ctx := context.Background()

	l.Allow(ctx, "c", "/e", 10*time.Second, 1)
	*now = now.Add(2500 * time.Millisecond)

	res, _ := l.Allow(ctx, "c", "/e", 10*time.Second, 1)
	if res.Allowed {
		t.Fatal("second request allowed with max=1")
	}
	if res.RetryAfter != 8*time.Second {
		t.Fatalf("RetryAfter = %v, want 8s (ceil of 7.5s)", res.RetryAfter)
	}
}

func TestMemoryLimiterConcurrentIncrements(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	const workers = 16
	const perWorker = 25
	const max = workers*perWorker - 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				res, err := l.Allow(ctx, "shared", "/hot", time.Hour, max)
				if err != nil {
					t.Errorf("Allow failed: %v", err)
					return
				}
				if res.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if allowed != max {
		t.Fatalf("allowed %d requests, want exactly %d", allowed, max)
	}
}
