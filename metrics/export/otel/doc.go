// Package otel bridges engine metrics into OpenTelemetry.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine counter
// and an Int64ObservableGauge per latency bucket, all fed by one callback
// that reads [authpolicy.Engine.MetricsSnapshot] each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
