package gatekit

import (
	"context"
	"fmt"
	"time"
)

// CheckLockout reports the current lockout state for an account. Expired
// locks are cleared lazily during the read, so a caller never sees a
// stale lock.
//
// CheckLockout may return an error when input validation, dependency calls, or security checks fail.
// CheckLockout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) CheckLockout(ctx context.Context, accountID string) (LockoutStatus, error) {
	if g == nil || g.lockouts == nil {
		return LockoutStatus{}, ErrGateNotReady
	}
	if accountID == "" {
		return LockoutStatus{}, ErrAccountRequired
	}

	status, err := g.checkLockout(ctx, accountID)
	if err != nil {
		return LockoutStatus{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return LockoutStatus{
		Locked:           status.Locked,
		RemainingSeconds: int(status.Remaining / time.Second),
		FailedAttempts:   status.FailedAttempts,
	}, nil
}

// RecordFailedAttempt counts one authentication failure against the
// account. Every failure emits an audit event; crossing the configured
// threshold additionally engages the lock. The returned status reflects
// the state after the increment.
//
// RecordFailedAttempt may return an error when input validation, dependency calls, or security checks fail.
// RecordFailedAttempt does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) RecordFailedAttempt(ctx context.Context, accountID, ip string) (LockoutStatus, error) {
	if g == nil || g.lockouts == nil {
		return LockoutStatus{}, ErrGateNotReady
	}
	if accountID == "" {
		return LockoutStatus{}, ErrAccountRequired
	}

	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	status, err := g.lockouts.RecordFailure(checkCtx, accountID, ip)
	if err != nil {
		return LockoutStatus{}, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	g.emitAudit(ctx, AuditEvent{
		EventType: "lockout.failure",
		Severity:  SeverityWarning,
		AccountID: accountID,
		IP:        ip,
		Success:   false,
		Details: map[string]string{
			"failed_attempts": fmt.Sprintf("%d", status.FailedAttempts),
		},
	})

	if status.Locked {
		g.metrics.Inc(MetricLockoutEngaged)
		g.emitAudit(ctx, AuditEvent{
			EventType: "lockout.engaged",
			Severity:  SeverityCritical,
			AccountID: accountID,
			IP:        ip,
			Success:   false,
			Details: map[string]string{
				"failed_attempts": fmt.Sprintf("%d", status.FailedAttempts),
			},
		})
	}

	return LockoutStatus{
		Locked:           status.Locked,
		RemainingSeconds: int(status.Remaining / time.Second),
		FailedAttempts:   status.FailedAttempts,
	}, nil
}

// ClearAttempts resets the failure counter after a successful
// authentication.
//
// ClearAttempts may return an error when input validation, dependency calls, or security checks fail.
// ClearAttempts does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) ClearAttempts(ctx context.Context, accountID string) error {
	if g == nil || g.lockouts == nil {
		return ErrGateNotReady
	}
	if accountID == "" {
		return ErrAccountRequired
	}

	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	if err := g.lockouts.Clear(checkCtx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// rejectIfLocked guards credential verification paths. A lockout backend
// failure denies the attempt; verification never proceeds on an unknown
// lock state.
func (g *Gate) rejectIfLocked(ctx context.Context, accountID string) error {
	if g.lockouts == nil {
		return nil
	}
	status, err := g.checkLockout(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	if status.Locked {
		return ErrAccountLocked
	}
	return nil
}

// noteFailedAttempt records a failure best-effort from a verification
// path where the primary error is already decided.
func (g *Gate) noteFailedAttempt(ctx context.Context, accountID, ip, eventType string) {
	g.emitAudit(ctx, AuditEvent{
		EventType: eventType,
		Severity:  SeverityWarning,
		AccountID: accountID,
		IP:        ip,
		Success:   false,
		Error:     "code rejected",
	})
	if g.lockouts == nil {
		return
	}
	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	if status, err := g.lockouts.RecordFailure(checkCtx, accountID, ip); err == nil && status.Locked {
		g.metrics.Inc(MetricLockoutEngaged)
	}
}

func (g *Gate) clearFailedAttempts(ctx context.Context, accountID string) {
	if g.lockouts == nil {
		return
	}
	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	_ = g.lockouts.Clear(checkCtx, accountID)
}
