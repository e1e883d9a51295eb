// Package otel provides OpenTelemetry metric bindings for portal auth counters
// and histograms.
//
// [NewExporter] registers an Int64ObservableCounter per counter and an
// Int64ObservableGauge per histogram bucket. A single callback reads the
// source snapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate orchestrator or limiter state.
package otel
