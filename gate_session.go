package gatekit

import (
	"context"
	"fmt"

	"github.com/MrEthical07/gatekit/session"
)

// CreateSession registers a new session for an account and enforces the
// concurrency cap, evicting the least recently active sessions when the
// account is over its limit.
//
// CreateSession may return an error when input validation, dependency calls, or security checks fail.
// CreateSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) CreateSession(ctx context.Context, accountID, deviceInfo, ip string) (*session.Session, error) {
	if g == nil || g.sessions == nil {
		return nil, ErrGateNotReady
	}
	if accountID == "" {
		return nil, ErrAccountRequired
	}

	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	record, err := g.sessions.Create(checkCtx, accountID, deviceInfo, ip)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	g.metrics.Inc(MetricSessionCreated)
	g.emitAudit(ctx, AuditEvent{
		EventType: "session.create",
		Severity:  SeverityInfo,
		AccountID: accountID,
		SessionID: record.Token,
		IP:        ip,
		Success:   true,
	})
	return record, nil
}

// GetSession loads a session by token. Expired sessions are removed
// during the read and reported as not found.
//
// GetSession may return an error when input validation, dependency calls, or security checks fail.
// GetSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) GetSession(ctx context.Context, token string) (*session.Session, error) {
	if g == nil || g.sessions == nil {
		return nil, ErrGateNotReady
	}

	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	return g.sessions.Get(checkCtx, token)
}

// TouchSession refreshes a session's activity stamp, which also protects
// it from cap eviction.
//
// TouchSession may return an error when input validation, dependency calls, or security checks fail.
// TouchSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) TouchSession(ctx context.Context, token string) error {
	if g == nil || g.sessions == nil {
		return ErrGateNotReady
	}

	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	return g.sessions.Touch(checkCtx, token)
}

// CountActiveSessions reports how many live sessions the account holds.
//
// CountActiveSessions may return an error when input validation, dependency calls, or security checks fail.
// CountActiveSessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) CountActiveSessions(ctx context.Context, accountID string) (int, error) {
	if g == nil || g.sessions == nil {
		return 0, ErrGateNotReady
	}
	if accountID == "" {
		return 0, ErrAccountRequired
	}

	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	count, err := g.sessions.CountActive(checkCtx, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return count, nil
}

// EnforceSessionCap re-applies the concurrency cap outside the create
// path, useful after a config change lowers the limit. Returns how many
// sessions were evicted.
//
// EnforceSessionCap may return an error when input validation, dependency calls, or security checks fail.
// EnforceSessionCap does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) EnforceSessionCap(ctx context.Context, accountID string) (int, error) {
	if g == nil || g.sessions == nil {
		return 0, ErrGateNotReady
	}
	if accountID == "" {
		return 0, ErrAccountRequired
	}

	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	evicted, err := g.sessions.EnforceCap(checkCtx, accountID, g.config.Session.MaxConcurrent)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	for i := 0; i < evicted; i++ {
		g.metrics.Inc(MetricSessionEvicted)
	}
	return evicted, nil
}

// RevokeSession deactivates one session. Revoking an unknown token is a
// no-op, not an error.
//
// RevokeSession may return an error when input validation, dependency calls, or security checks fail.
// RevokeSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) RevokeSession(ctx context.Context, token string) error {
	if g == nil || g.sessions == nil {
		return ErrGateNotReady
	}

	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	if err := g.sessions.Revoke(checkCtx, token); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	g.emitAudit(ctx, AuditEvent{
		EventType: "session.revoke",
		Severity:  SeverityInfo,
		SessionID: token,
		Success:   true,
	})
	return nil
}

// RevokeAllSessions deactivates every session the account holds, the
// standard response to a credential compromise.
//
// RevokeAllSessions may return an error when input validation, dependency calls, or security checks fail.
// RevokeAllSessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (g *Gate) RevokeAllSessions(ctx context.Context, accountID string) error {
	if g == nil || g.sessions == nil {
		return ErrGateNotReady
	}
	if accountID == "" {
		return ErrAccountRequired
	}

	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	if err := g.sessions.RevokeAll(checkCtx, accountID); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	g.emitAudit(ctx, AuditEvent{
		EventType: "session.revoke_all",
		Severity:  SeverityWarning,
		AccountID: accountID,
		Success:   true,
	})
	return nil
}
