// Package lockout tracks failed authentication attempts per account and
// computes lockout windows.
//
// # State machine
//
// Clear -> Warning (failures below threshold) -> Locked (threshold reached,
// until now+duration) -> Clear on success or expiry. Expiry is lazy: a stale
// record is deleted on the next check, there is no background sweep.
//
// Counting is per-account rather than per-IP so distributed credential
// stuffing against one account still trips the lock; the origin IP is kept on
// the record for forensics only. The inverse case (one IP, many accounts) is
// the gate's blocklist step.
//
// # Concurrency
//
// RecordFailure runs as a single Lua script so two concurrent failures never
// under-count and the threshold comparison sees the incremented value.
//
// # What this package must NOT do
//
//   - Decide which attempts count as failures; the caller does.
//   - Emit audit events; the gate owns observability.
package lockout
