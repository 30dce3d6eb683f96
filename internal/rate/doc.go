// Package rate implements fixed-window request counting keyed by client
// identity and endpoint class.
//
// # Window semantics
//
// Fixed windows, not sliding or token-bucket: the counter resets the instant
// the window expires, which permits up to twice the budget in a burst
// straddling a boundary. That is an accepted limitation of the
// abuse-deterrence threat model, not a defect.
//
// Two implementations share one contract: [MemoryLimiter] owns an in-process
// counter table (the only mutable state the core holds directly, acceptable
// to lose on restart) and [RedisLimiter] uses INCR plus a conditional EXPIRE
// on the first hit for multi-instance deployments.
//
// # What this package must NOT do
//
//   - Hardcode per-endpoint budgets; window and ceiling are caller-supplied.
//   - Be imported outside the gatekit module.
package rate
