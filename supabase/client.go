package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/browser"
	"golang.org/x/oauth2"
)

const (
	authorizePath = "/auth/v1/authorize"
	tokenPath     = "/auth/v1/token"
	logoutPath    = "/auth/v1/logout"

	maxResponseBodySize = 1 << 20
	defaultTimeout      = 15 * time.Second

	// expiryLeeway treats a session about to expire as already expired.
	expiryLeeway = 10 * time.Second
)

// Config configures a Client.
type Config struct {
	// URL is the Supabase project URL, e.g. https://xyz.supabase.co.
	URL string
	// AnonKey is the project's public anon key.
	AnonKey string
	// HTTPClient is used for token and logout calls.
	HTTPClient *http.Client
	// Opener shows the authorize URL to the user. Defaults to the system browser.
	Opener func(url string) error
	Logger *slog.Logger
	// Now overrides the clock used for session expiry.
	Now func() time.Time
}

// Client runs the PKCE flow against one Supabase project.
type Client struct {
	base       *url.URL
	anonKey    string
	httpClient *http.Client
	opener     func(string) error
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	pending *pendingSignIn
	session *oauth2.Token
}

type pendingSignIn struct {
	verifier string
	done     chan struct{}
	once     sync.Once
	err      error
}

func (p *pendingSignIn) finish(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: url %q must be an absolute http(s) url", ErrInvalidConfig, cfg.URL)
	}
	if strings.TrimSpace(cfg.AnonKey) == "" {
		return nil, fmt.Errorf("%w: anon key is required", ErrInvalidConfig)
	}
	base.Path = strings.TrimRight(base.Path, "/")

	c := &Client{
		base:       base,
		anonKey:    cfg.AnonKey,
		httpClient: cfg.HTTPClient,
		opener:     cfg.Opener,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.opener == nil {
		c.opener = browser.OpenURL
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path += path
	return u.String()
}

// AuthorizeURL builds the PKCE authorize URL for provider and records the
// verifier for the callback. It replaces any sign-in already in progress.
func (c *Client) AuthorizeURL(provider, redirectTo string) (string, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return "", ErrProviderRequired
	}

	verifier := oauth2.GenerateVerifier()
	conf := oauth2.Config{
		Endpoint: oauth2.Endpoint{AuthURL: c.endpoint(authorizePath)},
	}
	authURL := conf.AuthCodeURL("",
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("provider", provider),
		oauth2.SetAuthURLParam("redirect_to", redirectTo),
	)

	c.mu.Lock()
	if c.pending != nil {
		c.pending.finish(ErrNoPendingSignIn)
	}
	c.pending = &pendingSignIn{verifier: verifier, done: make(chan struct{})}
	c.mu.Unlock()

	return authURL, nil
}

// SignIn starts the redirect handshake and opens the authorize URL. The
// opener's error is returned unchanged.
func (c *Client) SignIn(_ context.Context, provider, redirectTo string) error {
	authURL, err := c.AuthorizeURL(provider, redirectTo)
	if err != nil {
		return err
	}

	c.logger.Info("opening identity provider sign-in", "provider", provider, "redirect_to", redirectTo)
	return c.opener(authURL)
}

// ExchangeCode trades an authorization code for a provider session using
// the verifier of the sign-in in progress.
func (c *Client) ExchangeCode(ctx context.Context, code string) error {
	if code == "" {
		return ErrMissingCode
	}

	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending == nil {
		return ErrNoPendingSignIn
	}

	tok, err := c.grant(ctx, "pkce", map[string]string{
		"auth_code":     code,
		"code_verifier": pending.verifier,
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.session = tok
	c.mu.Unlock()
	return nil
}

// WaitForCallback blocks until the callback handler finishes the sign-in in
// progress and returns its outcome.
func (c *Client) WaitForCallback(ctx context.Context) error {
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending == nil {
		return ErrNoPendingSignIn
	}

	select {
	case <-pending.done:
		return pending.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Session returns the current provider session, refreshing it once when it
// has expired. It returns nil without error when there is no session.
func (c *Client) Session(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	tok := c.session
	c.mu.Unlock()

	if tok == nil {
		return nil, nil
	}
	// A zero Expiry means the grant carried no lifetime; it never expires.
	if tok.Expiry.IsZero() || c.now().Add(expiryLeeway).Before(tok.Expiry) {
		return tok, nil
	}
	if tok.RefreshToken == "" {
		c.dropSession(tok)
		return nil, nil
	}

	refreshed, err := c.grant(ctx, "refresh_token", map[string]string{
		"refresh_token": tok.RefreshToken,
	})
	if err != nil {
		var pe *ProviderError
		if errors.As(err, &pe) {
			c.dropSession(tok)
		}
		return nil, err
	}

	c.mu.Lock()
	if c.session == tok {
		c.session = refreshed
	}
	c.mu.Unlock()
	return refreshed, nil
}

func (c *Client) dropSession(tok *oauth2.Token) {
	c.mu.Lock()
	if c.session == tok {
		c.session = nil
	}
	c.mu.Unlock()
}

// SignOut ends the provider session. The local session is dropped even when
// the logout call fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	tok := c.session
	c.session = nil
	c.mu.Unlock()

	if tok == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(logoutPath), nil)
	if err != nil {
		return fmt.Errorf("supabase: build logout request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	_, err = c.send(req)
	return err
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
}

func (c *Client) grant(ctx context.Context, grantType string, body map[string]string) (*oauth2.Token, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("supabase: encode token request: %w", err)
	}

	endpoint := c.endpoint(tokenPath) + "?grant_type=" + url.QueryEscape(grantType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("supabase: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.anonKey)

	respBody, err := c.send(req)
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access token", ErrMalformedResponse)
	}

	tok := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
	}
	switch {
	case tr.ExpiresAt > 0:
		tok.Expiry = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		tok.Expiry = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return tok, nil
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase: %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("supabase: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		pe := parseProviderError(resp.StatusCode, body)
		c.logger.Debug("supabase request failed", "path", req.URL.Path, "error", pe.Describe())
		return nil, pe
	}
	return body, nil
}
