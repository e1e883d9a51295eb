// Package portalauth is the authentication session core shared by every
// Teamified portal application.
//
// An [Orchestrator] binds three collaborators behind one façade:
//
//   - an identity provider (Supabase Auth by default) that runs the redirect
//     handshake and owns the provider-native session,
//   - the host's configured [tokenstore.TokenStore] that holds the
//     first-party token pair,
//   - a dedicated cookie-aware session prober, built unconditionally, that
//     answers "is the user already signed in to a sibling application?".
//
// The prober is never derived from the host's token store. A host that
// picks the in-memory store for its own tokens still gets shared-session
// detection.
//
// # Failure contract
//
// Sign-in and exchange failures are returned to the caller; provider
// messages are kept verbatim and a failed exchange leaves no token stored.
// Convenience checks are muted: [Orchestrator.CurrentUser] returns nil when
// no token is stored and when the backend cannot answer, and
// [Orchestrator.CheckSharedSession] returns nil both for "not signed in" and
// "could not tell". Callers that only check for nil cannot distinguish a
// signed-out user from an unreachable backend. Muted failures are logged.
//
// # What this package must NOT do
//
//   - Retry network calls. Each operation is one round trip; pass a context
//     to bound it.
//   - Log token values.
//   - Import the ratelimit or middleware packages (server-side concerns).
package portalauth
