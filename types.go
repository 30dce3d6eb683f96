package gatekit

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// TOTPCredential defines a public type used by gatekit APIs.
//
// TOTPCredential instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
//
// The secret is Base32-encoded and must never be logged; it is shown to the
// user exactly once, in the setup response. Enabled stays false until the
// first successful code verification, at which point VerifiedAt is stamped.
type TOTPCredential struct {
	AccountID   string   `json:"account_id"`
	Secret      string   `json:"secret"`
	BackupCodes []string `json:"backup_codes"`
	Enabled     bool     `json:"enabled"`
	CreatedAt   int64    `json:"created_at"`
	VerifiedAt  int64    `json:"verified_at,omitempty"`
}

// Identity is the authenticated principal resolved by the [IdentityProvider].
type Identity struct {
	ID    string
	Email string
}

// IdentityProvider resolves the authenticated identity for a request.
// A nil identity with a nil error means the request is unauthenticated;
// that is a state, not an error.
type IdentityProvider interface {
	CurrentIdentity(ctx context.Context, req *Request) (*Identity, error)
}

// CredentialStore persists TOTP credentials. A nil credential with a nil
// error means two-factor is not set up for the account; that is a state,
// not an error.
type CredentialStore interface {
	Get(ctx context.Context, accountID string) (*TOTPCredential, error)
	Upsert(ctx context.Context, credential *TOTPCredential) error
	Delete(ctx context.Context, accountID string) error
}

// EntitlementProvider answers subscription checks for premium routes.
type EntitlementProvider interface {
	HasActiveSubscription(ctx context.Context, accountID string) (bool, error)
}

// BlockStatus reports whether an IP is on the blocklist and until when.
// A zero ExpiresAt means the block has no expiry.
type BlockStatus struct {
	Blocked   bool
	ExpiresAt time.Time
}

// Blocklist answers IP-level deny checks; the data itself is external.
type Blocklist interface {
	IsBlocked(ctx context.Context, ip string) (BlockStatus, error)
}

// Request is the gate's view of one inbound request. The body is captured
// by the caller (the middleware does this with a size limit); the gate never
// reads from the network.
type Request struct {
	Method    string
	Path      string
	IP        string
	UserAgent string
	Headers   http.Header
	Query     url.Values
	Body      []byte

	SessionToken   string
	TwoFactorGrant string
	TwoFactorCode  string

	// Identity may be pre-resolved by the host application; when nil the
	// gate asks the IdentityProvider during the authentication step.
	Identity *Identity
}

// RoutePolicy declares what a route demands from the gate. Budgets are
// caller-supplied so endpoint classes (public, authenticated, premium,
// admin) can carry distinct limits.
type RoutePolicy struct {
	Endpoint            string
	RequireAuth         bool
	RequireTwoFactor    bool
	RequireSubscription bool
	RateLimitWindow     time.Duration
	RateLimitMax        int
}

// Decision is the gate's verdict for one request.
type Decision struct {
	Allow  bool
	Status int
	Body   DenyBody

	// Identity carries the resolved principal on allowed requests so the
	// host application does not resolve it twice.
	Identity *Identity
}

// DenyBody is the machine-readable deny payload. It carries enough to act
// (retry-after, remaining lockout, rejected fields) but never reveals
// whether an account exists.
type DenyBody struct {
	Error      string   `json:"error,omitempty"`
	RetryAfter int      `json:"retry_after,omitempty"`
	Details    []string `json:"details,omitempty"`
}

// TOTPSetup is the one-time response to a setup request. The secret and
// backup codes are not retrievable afterwards.
type TOTPSetup struct {
	Secret       string
	ProvisionURI string
	BackupCodes  []string
}

// LockoutStatus reports an account's lockout state.
type LockoutStatus struct {
	Locked           bool
	RemainingSeconds int
	FailedAttempts   int
}
