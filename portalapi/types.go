package portalapi

// Role is one role assignment of a portal user.
type Role struct {
	RoleType string `json:"roleType"`
	Scope    string `json:"scope"`
}

// Identity is the portal user as reported by the backend. The client never
// caches it.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Roles     []Role `json:"roles"`
}

// TokenPair is the first-party access/refresh pair issued by the backend.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Complete reports whether both tokens are present.
func (p TokenPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// ExchangeResult is the response of a successful token exchange.
type ExchangeResult struct {
	TokenPair
	User Identity `json:"user"`
}

// SharedSession is one shared-session determination. Identity is set only
// when Authenticated is true.
type SharedSession struct {
	Authenticated bool      `json:"authenticated"`
	Identity      *Identity `json:"user,omitempty"`
}
