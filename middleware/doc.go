// Package middleware puts a [ratelimit.Limiter] in front of HTTP handlers.
//
// # Guards
//
//   - [RateLimit] counts each request under a [KeyFunc] and answers 429 once
//     the policy's quota for the window is spent.
//   - [ByIP] and [ByIPAndEndpoint] derive keys from the caller's address.
//   - [ClientIP] resolves that address, optionally trusting X-Forwarded-For.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Limiter calls. Counting,
// window expiry and shared-store fallback all live in package ratelimit.
//
// # What this package must NOT do
//
//   - Fail a request because the shared store is down (the Limiter never
//     returns an error).
//   - Read request bodies.
//   - Decide who the user is; keys are derived from the connection only.
package middleware
