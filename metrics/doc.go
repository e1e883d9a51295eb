// Package metrics provides the lock-free counters and latency histograms shared
// by the orchestrator and the rate limiter.
//
// Counters are padded to a cache line so hot paths (every rate-limit check)
// do not contend. Exporters under metrics/export read [Snapshot] values and
// never touch the counters directly.
package metrics
