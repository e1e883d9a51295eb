// Package prometheus exposes portal auth metrics to Prometheus.
//
// [NewExporter] accepts any snapshot [Source] and offers two surfaces: a
// self-contained [Exporter.Handler] rendering the text exposition format, and
// [Exporter.Collector] for callers that already run a client_golang registry.
// Counter names are prefixed portalauth_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry; callers decide.
//   - Mutate orchestrator or limiter state.
package prometheus
