package gatekit

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by gatekit APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricGateAllowed is an exported constant or variable used by the security gate.
	MetricGateAllowed MetricID = iota
	// MetricGateBlockedIP is an exported constant or variable used by the security gate.
	MetricGateBlockedIP
	// MetricGateRateLimited is an exported constant or variable used by the security gate.
	MetricGateRateLimited
	// MetricGateUnauthenticated is an exported constant or variable used by the security gate.
	MetricGateUnauthenticated
	// MetricGateLockedOut is an exported constant or variable used by the security gate.
	MetricGateLockedOut
	// MetricGateTwoFactorDenied is an exported constant or variable used by the security gate.
	MetricGateTwoFactorDenied
	// MetricGateEntitlementDenied is an exported constant or variable used by the security gate.
	MetricGateEntitlementDenied
	// MetricGateInputRejected is an exported constant or variable used by the security gate.
	MetricGateInputRejected
	// MetricGateFailedClosed is an exported constant or variable used by the security gate.
	MetricGateFailedClosed
	// MetricTOTPSuccess is an exported constant or variable used by the security gate.
	MetricTOTPSuccess
	// MetricTOTPFailure is an exported constant or variable used by the security gate.
	MetricTOTPFailure
	// MetricBackupCodeUsed is an exported constant or variable used by the security gate.
	MetricBackupCodeUsed
	// MetricBackupCodeFailed is an exported constant or variable used by the security gate.
	MetricBackupCodeFailed
	// MetricLockoutEngaged is an exported constant or variable used by the security gate.
	MetricLockoutEngaged
	// MetricSessionCreated is an exported constant or variable used by the security gate.
	MetricSessionCreated
	// MetricSessionEvicted is an exported constant or variable used by the security gate.
	MetricSessionEvicted
	// MetricGrantIssued is an exported constant or variable used by the security gate.
	MetricGrantIssued
	// MetricAuthorizeLatency is an exported constant or variable used by the security gate.
	MetricAuthorizeLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// Histogram bucket upper bounds in microseconds, then +Inf.
var histogramBoundsMicros = [histBucketCount - 1]int64{50, 100, 250, 500, 1000, 5000, 25000}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics defines a public type used by gatekit APIs.
//
// Metrics instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot defines a public type used by gatekit APIs.
//
// MetricsSnapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates the counter set for a gate instance.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counting is active.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to a counter. Disabled or out-of-range IDs are ignored.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample into the histogram for id.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}

	micros := d.Microseconds()
	bucket := histBucketCount - 1
	for i, bound := range histogramBoundsMicros {
		if micros <= bound {
			bucket = i
			break
		}
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucket], 1)
}

// Snapshot copies all counters and histogram buckets at one instant.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snapshot := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, metricIDCount),
		Histograms: make(map[MetricID][]uint64),
	}
	if m == nil || !m.enabled {
		return snapshot
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		snapshot.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthorizeLatency].buckets[i])
		}
		snapshot.Histograms[MetricAuthorizeLatency] = buckets
	}

	return snapshot
}
