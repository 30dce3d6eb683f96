// Package gatekit provides the account-security core for web backends:
// RFC 6238 two-factor authentication with backup-code recovery, per-account
// lockout tracking, fixed-window rate limiting, a capped session registry,
// and a Security Gate that composes them into one ordered pass/deny decision
// per request.
//
// The package is designed for concurrent server workloads: Gate methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// gatekit is the public surface. It exposes [Gate], [Builder], [Config],
// collaborator interfaces ([IdentityProvider], [CredentialStore],
// [EntitlementProvider], [Blocklist], [AuditSink]) and value types. Pure
// one-time-password math lives in the otp subpackage, the session registry
// in session, and coordination primitives under internal/.
//
// # Pipeline ordering
//
// Authorize runs its checks in a fixed order: blocklist, rate limit,
// authentication, lockout, two-factor, entitlement, input validation. The
// order is part of the safety argument: rate limiting before authentication
// avoids leaking auth state to unauthenticated probing, and the lockout
// check before two-factor avoids spending HMAC work on locked accounts. Do
// not reorder.
//
// # What this package must NOT do
//
//   - Authenticate passwords or store identities; those stay behind
//     [IdentityProvider].
//   - Fail open: a backend error during a security-critical check denies the
//     request. Only audit delivery is allowed to fail silently.
//   - Log or expose TOTP secrets; they appear once, in the setup response.
package gatekit
