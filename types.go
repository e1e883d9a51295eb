package portalauth

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/PatonaIM/teamified-accounts-sub013/portalapi"
)

// Value types exchanged with the portal backend.
type (
	PortalIdentity    = portalapi.Identity
	Role              = portalapi.Role
	TokenPair         = portalapi.TokenPair
	ExchangeResult    = portalapi.ExchangeResult
	SharedSessionInfo = portalapi.SharedSession
)

// IdentityProvider is the external identity-provider SDK the orchestrator
// drives. *supabase.Client implements it.
type IdentityProvider interface {
	// SignIn starts the redirect handshake. Errors carry the provider's
	// message unchanged.
	SignIn(ctx context.Context, provider, redirectTo string) error
	// Session returns the provider-native session, or nil when there is none.
	Session(ctx context.Context) (*oauth2.Token, error)
	// SignOut ends the provider-native session. The local session must be
	// gone afterwards even if an error is returned.
	SignOut(ctx context.Context) error
}

// SessionProber answers the shared-session question over the cookie
// channel. It returns nil for both "not authenticated" and "undeterminable".
// *tokenstore.Cookie implements it.
type SessionProber interface {
	CheckSession(ctx context.Context) *portalapi.SharedSession
}
