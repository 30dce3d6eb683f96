package rate

import (
	"context"
	"sync"
	"time"
)

const sweepThreshold = 4096

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a process-local fixed-window counter table. Contention is
// local to one key at a time in practice, so a single mutex is sufficient.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryLimiter creates an empty in-process limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow counts one request against the clientID+endpoint window. The first
// request in a window initializes count=1; once the count exceeds max the
// request is rejected with a whole-second retry hint until the window rolls
// over.
func (l *MemoryLimiter) Allow(_ context.Context, clientID, endpoint string, windowSize time.Duration, max int) (Result, error) {
	if windowSize <= 0 || max <= 0 {
		return Result{Allowed: true, Remaining: 0}, nil
	}

	key := limiterKey(clientID, endpoint)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		if len(l.windows) >= sweepThreshold {
			l.sweepLocked(now)
		}
		l.windows[key] = &window{count: 1, resetAt: now.Add(windowSize)}
		return Result{Allowed: true, Remaining: max - 1}, nil
	}

	w.count++
	if w.count > max {
		return Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: retryAfter(w.resetAt.Sub(now)),
		}, nil
	}

	return Result{Allowed: true, Remaining: max - w.count}, nil
}

// sweepLocked drops expired windows. Called opportunistically under the lock
// when the table grows past the threshold; there is no background sweeper.
func (l *MemoryLimiter) sweepLocked(now time.Time) {
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
