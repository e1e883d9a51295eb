// Package supabase binds the Supabase Auth (GoTrue) PKCE sign-in flow for
// native hosts: it builds the authorize URL, opens it in the browser, serves
// the redirect callback, and trades the authorization code for a
// provider-native session.
//
// The provider session is kept in memory only. Hosts persist the first-party
// tokens they obtain with it, never the provider session itself.
package supabase
