package gatekit

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/gatekit/internal/lockout"
	"github.com/MrEthical07/gatekit/internal/rate"
	"github.com/MrEthical07/gatekit/internal/scan"
	"github.com/MrEthical07/gatekit/session"
)

// Gate defines a public type used by gatekit APIs.
//
// Gate instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Gate struct {
	config Config

	identity     IdentityProvider
	credentials  CredentialStore
	entitlements EntitlementProvider
	blocklist    Blocklist

	limiter  rate.Limiter
	lockouts *lockout.Tracker
	sessions *session.Store
	scanner  *scan.Scanner
	grants   *grantIssuer
	audit    *auditDispatcher
	metrics  *Metrics

	now func() time.Time
}

// Close flushes and stops the audit dispatcher. The gate must not be used
// after Close returns.
func (g *Gate) Close() {
	if g == nil {
		return
	}
	g.audit.Close()
}

// Metrics exposes the gate's counter set for export.
func (g *Gate) Metrics() *Metrics {
	if g == nil {
		return nil
	}
	return g.metrics
}

// MetricsSnapshot copies the gate's counters and histograms at one
// instant, the read side used by the exporter packages.
func (g *Gate) MetricsSnapshot() MetricsSnapshot {
	if g == nil {
		return MetricsSnapshot{}
	}
	return g.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (g *Gate) AuditDropped() uint64 {
	if g == nil {
		return 0
	}
	return g.audit.Dropped()
}

func allowDecision(identity *Identity) Decision {
	return Decision{
		Allow:    true,
		Status:   http.StatusOK,
		Identity: identity,
	}
}

func denyDecision(status int, body DenyBody) Decision {
	return Decision{
		Allow:  false,
		Status: status,
		Body:   body,
	}
}

// Authorize runs the full check pipeline for one request and returns a
// verdict. The order is fixed: blocklist, rate limit, authentication,
// lockout, two-factor, entitlement, input validation. Any backend error
// on a critical check denies with 503; the gate never fails open.
func (g *Gate) Authorize(ctx context.Context, req *Request, policy RoutePolicy) Decision {
	if g == nil {
		return denyDecision(http.StatusServiceUnavailable, DenyBody{Error: "service_unavailable"})
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		req = &Request{}
	}

	start := g.now()
	decision := g.runPipeline(ctx, req, policy)
	g.metrics.Observe(MetricAuthorizeLatency, g.now().Sub(start))

	return decision
}

func (g *Gate) runPipeline(ctx context.Context, req *Request, policy RoutePolicy) Decision {
	// -------- STAGE 1: BLOCKLIST --------
	if g.blocklist != nil {
		status, err := g.checkBlocklist(ctx, req.IP)
		if err != nil {
			return g.failClosed(ctx, req, "blocklist", err)
		}
		if status.Blocked {
			g.metrics.Inc(MetricGateBlockedIP)
			g.emitDeny(ctx, req, "", "ip_blocked", SeverityWarning, nil)
			return denyDecision(http.StatusForbidden, DenyBody{Error: "ip_blocked"})
		}
	}

	// -------- STAGE 2: RATE LIMIT --------
	if g.config.RateLimit.Enabled {
		window, max := policy.RateLimitWindow, policy.RateLimitMax
		if window <= 0 || max <= 0 {
			window, max = g.config.RateLimit.Window, g.config.RateLimit.MaxRequests
		}
		endpoint := policy.Endpoint
		if endpoint == "" {
			endpoint = req.Path
		}

		result, err := g.checkRateLimit(ctx, req.IP, endpoint, window, max)
		if err != nil {
			return g.failClosed(ctx, req, "rate_limit", err)
		}
		if !result.Allowed {
			retryAfter := int(result.RetryAfter / time.Second)
			g.metrics.Inc(MetricGateRateLimited)
			g.emitDeny(ctx, req, "", "rate_limited", SeverityWarning, map[string]string{
				"endpoint": endpoint,
			})
			return denyDecision(http.StatusTooManyRequests, DenyBody{
				Error:      "rate_limited",
				RetryAfter: retryAfter,
			})
		}
	}

	// -------- STAGE 3: AUTHENTICATION --------
	identity := req.Identity
	if identity == nil {
		resolved, err := g.resolveIdentity(ctx, req)
		if err != nil {
			return g.failClosed(ctx, req, "authentication", err)
		}
		identity = resolved
	}
	if policy.RequireAuth && identity == nil {
		g.metrics.Inc(MetricGateUnauthenticated)
		g.emitDeny(ctx, req, "", "authentication_required", SeverityInfo, nil)
		return denyDecision(http.StatusUnauthorized, DenyBody{Error: "authentication_required"})
	}

	// -------- STAGE 4: LOCKOUT --------
	if g.lockouts != nil && identity != nil {
		status, err := g.checkLockout(ctx, identity.ID)
		if err != nil {
			return g.failClosed(ctx, req, "lockout", err)
		}
		if status.Locked {
			g.metrics.Inc(MetricGateLockedOut)
			g.emitDeny(ctx, req, identity.ID, "account_locked", SeverityWarning, nil)
			return denyDecision(http.StatusUnauthorized, DenyBody{
				Error:      "account_locked",
				RetryAfter: int(status.Remaining / time.Second),
			})
		}
	}

	// -------- STAGE 5: TWO-FACTOR --------
	if policy.RequireTwoFactor && g.config.TOTP.Enabled {
		if identity == nil {
			g.metrics.Inc(MetricGateUnauthenticated)
			g.emitDeny(ctx, req, "", "authentication_required", SeverityInfo, nil)
			return denyDecision(http.StatusUnauthorized, DenyBody{Error: "authentication_required"})
		}

		credential, err := g.loadCredential(ctx, identity.ID)
		if err != nil {
			return g.failClosed(ctx, req, "two_factor", err)
		}
		// The step-up applies only to accounts with an enabled credential;
		// accounts that never enrolled (or never confirmed) pass through.
		if credential != nil && credential.Enabled {
			if err := g.grants.Verify(req.TwoFactorGrant, identity.ID, req.SessionToken, credential.VerifiedAt); err != nil {
				ok, redeemErr := g.redeemInlineCode(ctx, identity.ID, req.IP, credential, req.TwoFactorCode)
				if redeemErr != nil {
					return g.failClosed(ctx, req, "two_factor", redeemErr)
				}
				if !ok {
					g.metrics.Inc(MetricGateTwoFactorDenied)
					g.emitDeny(ctx, req, identity.ID, "two_factor_required", SeverityWarning, map[string]string{
						"reason": "grant_rejected",
					})
					return denyDecision(http.StatusForbidden, DenyBody{Error: "two_factor_required"})
				}
			}
		}
	}

	// -------- STAGE 6: ENTITLEMENT --------
	if policy.RequireSubscription && g.entitlements != nil {
		if identity == nil {
			g.metrics.Inc(MetricGateUnauthenticated)
			g.emitDeny(ctx, req, "", "authentication_required", SeverityInfo, nil)
			return denyDecision(http.StatusUnauthorized, DenyBody{Error: "authentication_required"})
		}

		active, err := g.checkEntitlement(ctx, identity.ID)
		if err != nil {
			return g.failClosed(ctx, req, "entitlement", err)
		}
		if !active {
			g.metrics.Inc(MetricGateEntitlementDenied)
			g.emitDeny(ctx, req, identity.ID, "subscription_required", SeverityInfo, nil)
			return denyDecision(http.StatusForbidden, DenyBody{Error: "subscription_required"})
		}
	}

	// -------- STAGE 7: INPUT VALIDATION --------
	if g.scanner != nil {
		violations := g.scanner.Scan(scan.Input{
			Method:      req.Method,
			ContentType: req.Headers.Get("Content-Type"),
			Headers:     req.Headers,
			Query:       req.Query,
			Body:        req.Body,
		})
		if len(violations) > 0 {
			accountID := ""
			if identity != nil {
				accountID = identity.ID
			}
			g.metrics.Inc(MetricGateInputRejected)
			g.emitDeny(ctx, req, accountID, "invalid_input", SeverityCritical, map[string]string{
				"violations": violations[0],
			})
			return denyDecision(http.StatusBadRequest, DenyBody{
				Error:   "invalid_input",
				Details: violations,
			})
		}
	}

	g.metrics.Inc(MetricGateAllowed)
	return allowDecision(identity)
}

// failClosed converts a backend failure into a deny. The cause goes to
// audit, never to the client.
func (g *Gate) failClosed(ctx context.Context, req *Request, stage string, err error) Decision {
	g.metrics.Inc(MetricGateFailedClosed)
	g.emitDeny(ctx, req, "", "service_unavailable", SeverityCritical, map[string]string{
		"stage": stage,
		"cause": err.Error(),
	})
	return denyDecision(http.StatusServiceUnavailable, DenyBody{Error: "service_unavailable"})
}

func (g *Gate) checkBlocklist(ctx context.Context, ip string) (BlockStatus, error) {
	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	return g.blocklist.IsBlocked(checkCtx, ip)
}

func (g *Gate) checkRateLimit(ctx context.Context, clientID, endpoint string, window time.Duration, max int) (rate.Result, error) {
	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	return g.limiter.Allow(checkCtx, clientID, endpoint, window, max)
}

func (g *Gate) resolveIdentity(ctx context.Context, req *Request) (*Identity, error) {
	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	return g.identity.CurrentIdentity(checkCtx, req)
}

func (g *Gate) checkLockout(ctx context.Context, accountID string) (lockout.Status, error) {
	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	return g.lockouts.Check(checkCtx, accountID)
}

func (g *Gate) loadCredential(ctx context.Context, accountID string) (*TOTPCredential, error) {
	if g.credentials == nil {
		return nil, nil
	}
	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	return g.credentials.Get(checkCtx, accountID)
}

func (g *Gate) checkEntitlement(ctx context.Context, accountID string) (bool, error) {
	checkCtx, cancel := g.checkContext(ctx)
	defer cancel()
	return g.entitlements.HasActiveSubscription(checkCtx, accountID)
}

func (g *Gate) checkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.config.Gate.CheckTimeout)
}

func (g *Gate) emitDeny(ctx context.Context, req *Request, accountID, reason string, severity Severity, details map[string]string) {
	g.emitAudit(ctx, AuditEvent{
		EventType: "gate.denied",
		Severity:  severity,
		AccountID: accountID,
		SessionID: req.SessionToken,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		Success:   false,
		Error:     reason,
		Details:   details,
	})
}

func (g *Gate) emitAudit(ctx context.Context, event AuditEvent) {
	if g.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = g.now()
	}
	g.audit.Emit(ctx, event)
}
