package internaldefs

import (
	gatekit "github.com/MrEthical07/gatekit"
)

// CounterDef defines a public type used by gatekit APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   gatekit.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by gatekit APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   gatekit.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the security gate.
var CounterDefs = []CounterDef{
	{ID: gatekit.MetricGateAllowed, Name: "gatekit_gate_allowed_total", Help: "Requests allowed by the gate."},
	{ID: gatekit.MetricGateBlockedIP, Name: "gatekit_gate_blocked_ip_total", Help: "Requests denied by the IP blocklist."},
	{ID: gatekit.MetricGateRateLimited, Name: "gatekit_gate_rate_limited_total", Help: "Requests denied by rate limiting."},
	{ID: gatekit.MetricGateUnauthenticated, Name: "gatekit_gate_unauthenticated_total", Help: "Requests denied for missing authentication."},
	{ID: gatekit.MetricGateLockedOut, Name: "gatekit_gate_locked_out_total", Help: "Requests denied for locked accounts."},
	{ID: gatekit.MetricGateTwoFactorDenied, Name: "gatekit_gate_two_factor_denied_total", Help: "Requests denied by the two-factor check."},
	{ID: gatekit.MetricGateEntitlementDenied, Name: "gatekit_gate_entitlement_denied_total", Help: "Requests denied for missing subscription."},
	{ID: gatekit.MetricGateInputRejected, Name: "gatekit_gate_input_rejected_total", Help: "Requests denied by input validation."},
	{ID: gatekit.MetricGateFailedClosed, Name: "gatekit_gate_failed_closed_total", Help: "Requests denied because a backend check failed."},
	{ID: gatekit.MetricTOTPSuccess, Name: "gatekit_totp_success_total", Help: "Successful TOTP verifications."},
	{ID: gatekit.MetricTOTPFailure, Name: "gatekit_totp_failure_total", Help: "Failed TOTP verifications."},
	{ID: gatekit.MetricBackupCodeUsed, Name: "gatekit_backup_code_used_total", Help: "Successful backup-code redemptions."},
	{ID: gatekit.MetricBackupCodeFailed, Name: "gatekit_backup_code_failed_total", Help: "Failed backup-code redemptions."},
	{ID: gatekit.MetricLockoutEngaged, Name: "gatekit_lockout_engaged_total", Help: "Accounts locked after repeated failures."},
	{ID: gatekit.MetricSessionCreated, Name: "gatekit_session_created_total", Help: "Created sessions."},
	{ID: gatekit.MetricSessionEvicted, Name: "gatekit_session_evicted_total", Help: "Sessions evicted by the concurrency cap."},
	{ID: gatekit.MetricGrantIssued, Name: "gatekit_grant_issued_total", Help: "Issued two-factor grants."},
}

// HistogramDefs is an exported constant or variable used by the security gate.
var HistogramDefs = []HistogramDef{
	{ID: gatekit.MetricAuthorizeLatency, Name: "gatekit_authorize_latency_seconds", Help: "Authorize latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the security gate.
var HistogramBounds = []string{
	"0.00005",
	"0.0001",
	"0.00025",
	"0.0005",
	"0.001",
	"0.005",
	"0.025",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the security gate.
var HistogramBoundSuffix = []string{
	"0_00005",
	"0_0001",
	"0_00025",
	"0_0005",
	"0_001",
	"0_005",
	"0_025",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
