// Package ratelimit provides the admission counter that fronts sensitive
// authentication endpoints (login, password reset, token refresh, exchange).
//
// # Window semantics
//
// Fixed-window counters keyed "rate_limit:<key>". The primary path runs
// INCR and, when the result is 1, EXPIRE with the window rounded up to whole
// seconds. A request is allowed while the post-increment count is at most
// the quota.
//
// # Degraded operation
//
// When REDIS_URL is unset, or the store errors, checks are answered by a
// process-local map with the same window arithmetic. Store errors are logged
// (one warning per Limiter, then debug) and never reach the caller: an
// inability to count abuse must not deny legitimate traffic. The fallback is
// per process, so during an outage N instances admit up to N times the quota.
//
// # What this package must NOT do
//
//   - Return errors from Check.
//   - Hold a process-global client; each Limiter owns its connection.
package ratelimit
