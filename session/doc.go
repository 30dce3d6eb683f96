// Package session implements the active-session registry: one record per
// login, several per account up to a concurrency cap.
//
// # Storage layout
//
// Each record is a versioned binary blob under its token key with a TTL equal
// to the session lifetime. A per-account sorted set scores active tokens by
// last-activity time, which makes oldest-first eviction a range read.
//
// # Invariants
//
//   - At most MaxActive records per account are active; Create evicts the
//     least-recently-active sessions beyond the cap.
//   - Deactivation stamps a termination time and removes the token from the
//     account's active set; the blob stays until its TTL runs out so
//     forensics can still read it.
//
// Idle-timeout policy is NOT enforced here: Touch refreshes the
// last-activity stamp and the collaborator reading it decides when idle is
// too idle.
//
// # What this package must NOT do
//
//   - Authenticate anything; it tracks sessions it is told about.
//   - Import gatekit (the root package imports session, never the reverse).
package session
