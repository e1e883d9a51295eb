// Package portalapi is the client for the portal backend's authentication
// endpoints: the identity-provider token exchange, the "who am I" profile
// lookup, and the cookie-authenticated shared-session probe.
//
// Requests are single round trips. The client never retries; callers that
// need deadlines pass a context.
package portalapi
