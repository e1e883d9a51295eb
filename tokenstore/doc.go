// Package tokenstore persists the first-party access/refresh token pair.
//
// Four interchangeable variants implement TokenStore, each trading exposure
// against convenience:
//
//   - Memory: process lifetime only. Nothing survives a restart.
//   - Session: a per-session directory under the user's runtime dir, removed
//     on Close. Other processes of the same user can read it while open.
//   - Durable: a Backend (0600 files or the OS keyring) that survives
//     restarts. Use only for development or low-sensitivity hosts.
//   - Cookie: durable semantics for the tokens it manages, plus a cookie jar
//     that receives backend-set session cookies. Cookies are never copied
//     into token slots. The jar also backs the shared-session probe.
//
// All variants serve reads from an in-process view, so getters never do I/O
// and Clear is observed immediately. Backend write failures are logged and
// never returned.
//
// Concurrent writers in separate processes race last-write-wins; token
// pairs are idempotently replaceable so this is accepted.
package tokenstore
