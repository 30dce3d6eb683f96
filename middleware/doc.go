// Package middleware exposes HTTP middleware adapters that translate inbound
// requests into gatekit.Gate decisions.
//
// # Guards
//
//   - [Protect] — runs the full gate pipeline for a route policy.
//   - [DecisionFromContext] — retrieves the gate decision downstream.
//   - [IdentityFromContext] — retrieves the resolved identity downstream.
//
// Protect captures the request body up to the configured limit, builds a
// gatekit.Request, calls Gate.Authorize, and either forwards to the wrapped
// handler or writes the deny payload as JSON.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Gate calls. It does NOT make
// security decisions itself; all checks are delegated to Gate.Authorize.
//
// # What this package must NOT do
//
//   - Verify codes, grants, or sessions directly (delegates to Gate).
//   - Access Redis (Gate handles I/O).
//   - Soften a deny: the handler never runs after a deny decision.
package middleware
