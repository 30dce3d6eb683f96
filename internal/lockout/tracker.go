package lockout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBackendUnavailable indicates the lockout store is unreachable. Critical
// callers must fail closed on it.
var ErrBackendUnavailable = errors.New("lockout backend unavailable")

// Config holds lockout thresholds.
type Config struct {
	Threshold    int           // failures before locking, default 5
	LockDuration time.Duration // default 15 minutes
	Prefix       string        // redis key namespace, default "glk"
}

// Status is the result of a lockout check.
type Status struct {
	Locked         bool
	Remaining      time.Duration
	FailedAttempts int
}

// Tracker persists per-account failure records in Redis hashes.
type Tracker struct {
	redis redis.UniversalClient
	cfg   Config
	now   func() time.Time
}

// recordFailureScript increments the failure counter, stamps the attempt
// metadata, and sets the lock deadline in one atomic step once the counter
// reaches the threshold.
const recordFailureScript = `
local fails = redis.call("HINCRBY", KEYS[1], "fails", 1)
redis.call("HSET", KEYS[1], "last_attempt", ARGV[1])
redis.call("HSET", KEYS[1], "ip", ARGV[4])
local locked_until = tonumber(redis.call("HGET", KEYS[1], "locked_until") or "0")
if fails >= tonumber(ARGV[2]) and locked_until == 0 then
  locked_until = tonumber(ARGV[1]) + tonumber(ARGV[3])
  redis.call("HSET", KEYS[1], "locked_until", locked_until)
end
redis.call("EXPIRE", KEYS[1], ARGV[3])
return {fails, locked_until}
`

var recordFailureLua = redis.NewScript(recordFailureScript)

// New creates a tracker. Zero config fields fall back to the 5-failure /
// 15-minute policy.
func New(redisClient redis.UniversalClient, cfg Config) *Tracker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 15 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "glk"
	}
	return &Tracker{redis: redisClient, cfg: cfg, now: time.Now}
}

func (t *Tracker) key(accountID string) string {
	return t.cfg.Prefix + ":" + accountID
}

// Check reads the account's record. A lock deadline in the past deletes the
// record and reports clear; a missing record is the clear state, not an
// error.
func (t *Tracker) Check(ctx context.Context, accountID string) (Status, error) {
	fields, err := t.redis.HGetAll(ctx, t.key(accountID)).Result()
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(fields) == 0 {
		return Status{}, nil
	}

	fails, _ := strconv.Atoi(fields["fails"])
	lockedUntil, _ := strconv.ParseInt(fields["locked_until"], 10, 64)
	now := t.now().Unix()

	if lockedUntil > now {
		return Status{
			Locked:         true,
			Remaining:      time.Duration(lockedUntil-now) * time.Second,
			FailedAttempts: fails,
		}, nil
	}

	if lockedUntil != 0 {
		// Lock expired; lazy cleanup on the read path.
		if err := t.redis.Del(ctx, t.key(accountID)).Err(); err != nil {
			return Status{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return Status{}, nil
	}

	return Status{FailedAttempts: fails}, nil
}

// RecordFailure atomically counts one failed attempt from ip and returns the
// resulting status. The lock engages on the attempt that reaches the
// threshold.
func (t *Tracker) RecordFailure(ctx context.Context, accountID, ip string) (Status, error) {
	raw, err := recordFailureLua.Run(ctx, t.redis,
		[]string{t.key(accountID)},
		t.now().Unix(),
		t.cfg.Threshold,
		int64(t.cfg.LockDuration/time.Second),
		ip,
	).Result()
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return Status{}, fmt.Errorf("%w: unexpected script reply %v", ErrBackendUnavailable, raw)
	}

	fails, _ := values[0].(int64)
	lockedUntil, _ := values[1].(int64)

	status := Status{FailedAttempts: int(fails)}
	if now := t.now().Unix(); lockedUntil > now {
		status.Locked = true
		status.Remaining = time.Duration(lockedUntil-now) * time.Second
	}

	return status, nil
}

// Clear deletes the account's record. Called after successful
// authentication; deleting a missing record is a no-op.
func (t *Tracker) Clear(ctx context.Context, accountID string) error {
	if err := t.redis.Del(ctx, t.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
