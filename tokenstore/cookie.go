package tokenstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"

	"golang.org/x/net/publicsuffix"

	"github.com/PatonaIM/teamified-accounts-sub013/portalapi"
)

// CookieConfig configures a Cookie store.
type CookieConfig struct {
	// PortalAPIURL is the backend base URL that sets the session cookies.
	PortalAPIURL string
	// Backend holds the client-managed tokens. Nil selects a MemoryBackend.
	Backend Backend
	// Jar receives backend-set cookies. Nil creates a public-suffix aware jar.
	Jar http.CookieJar
	// HTTPClient is the transport for the session probe.
	HTTPClient *http.Client
}

// Cookie is the cookie-aware variant. Backend-set cookies (httpOnly or not)
// live only in the jar; the token slots hold only the pair the caller
// manages explicitly.
type Cookie struct {
	*persisted
	jar    http.CookieJar
	api    *portalapi.Client
	logger *slog.Logger
}

// NewCookie builds a cookie-aware store.
func NewCookie(cfg CookieConfig, opts ...Option) (*Cookie, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	jar := cfg.Jar
	if jar == nil {
		var err error
		jar, err = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("tokenstore: cookie jar: %w", err)
		}
	}

	api, err := portalapi.New(cfg.PortalAPIURL,
		portalapi.WithHTTPClient(cfg.HTTPClient),
		portalapi.WithCookieJar(jar),
		portalapi.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	backend := cfg.Backend
	if backend == nil {
		backend = NewMemoryBackend()
	}

	return &Cookie{
		persisted: newPersisted(backend, o),
		jar:       jar,
		api:       api,
		logger:    o.logger,
	}, nil
}

// NewProbe builds the cookie-aware instance used only for shared-session
// detection. Its token slots are memory-backed and are never written by
// the orchestrator.
func NewProbe(portalAPIURL string, httpClient *http.Client, opts ...Option) (*Cookie, error) {
	return NewCookie(CookieConfig{
		PortalAPIURL: portalAPIURL,
		HTTPClient:   httpClient,
	}, opts...)
}

func (c *Cookie) Kind() Kind { return KindCookie }

// Jar returns the cookie jar. Share it with other backend clients so the
// cookies their responses set are visible to CheckSession.
func (c *Cookie) Jar() http.CookieJar { return c.jar }

// CheckSession asks the backend whether the jar's cookies belong to a live
// session. It returns nil both when the user is not authenticated and when
// no determination could be made; the latter is logged.
func (c *Cookie) CheckSession(ctx context.Context) *portalapi.SharedSession {
	res, err := c.api.ProbeSession(ctx)
	if err != nil {
		c.logger.Warn("shared session probe failed", "error", err)
		return nil
	}
	if !res.Authenticated {
		c.logger.Debug("no shared session")
		return nil
	}
	return res
}
