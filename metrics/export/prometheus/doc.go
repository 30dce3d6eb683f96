// Package prometheus provides Prometheus collectors for gatekit metrics.
//
// [NewPrometheusExporter] accepts a [gatekit.Gate] and exposes an [http.Handler]
// that renders all gatekit counters and histograms in Prometheus text exposition
// format. Counter names are prefixed gatekit_*_total; the single histogram is
// gatekit_authorize_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate gate state.
package prometheus
