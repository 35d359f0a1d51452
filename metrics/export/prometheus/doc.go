// Package prometheus provides Prometheus collectors for shopauth metrics.
//
// [NewPrometheusExporter] accepts an [shopauth.Engine] and exposes an [http.Handler]
// that renders all shopauth counters and histograms in Prometheus text exposition
// format. Counter names are prefixed shopauth_*_total; the single histogram is
// shopauth_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
