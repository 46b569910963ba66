// Package prometheus exposes engine metrics as a client_golang collector.
//
// [PrometheusExporter] implements [prometheus.Collector]: counters are
// published as authpolicy_*_total and the ValidateSession latency histogram
// as authpolicy_validate_session_latency_seconds. Mount [PrometheusExporter.Handler]
// or register the exporter with an existing registry.
//
// # What this package must NOT do
//
//   - Register with the global Prometheus registry on its own.
//   - Mutate engine state.
package prometheus
