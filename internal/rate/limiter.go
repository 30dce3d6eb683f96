package rate

import (
	"context"
	"errors"
	"time"
)

// ErrBackendUnavailable indicates the shared counter backend is unreachable.
// Callers on the security-critical path must treat it as a denial.
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// Result reports the outcome of one counted request.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts a request against the fixed window for clientID+endpoint
// and reports whether it fits the budget of max requests per window.
type Limiter interface {
	Allow(ctx context.Context, clientID, endpoint string, window time.Duration, max int) (Result, error)
}

func limiterKey(clientID, endpoint string) string {
	return clientID + ":" + endpoint
}

// retryAfter rounds the remaining window up to whole seconds so a caller
// that sleeps the hint always lands in a fresh window.
func retryAfter(until time.Duration) time.Duration {
	secs := int64((until + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
