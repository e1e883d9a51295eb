package portalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ExchangePath = "/v1/auth/supabase/exchange"
	MePath       = "/v1/users/me"
	SessionPath  = "/v1/auth/session"

	// RequestIDHeader is sent on every request for backend log correlation.
	RequestIDHeader = "X-Request-ID"

	maxResponseBodySize = 1 << 20
	defaultTimeout      = 15 * time.Second
	defaultUserAgent    = "portalauth-go"
)

// Client calls the portal backend.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	jar        http.CookieJar
	logger     *slog.Logger
	userAgent  string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient sets the transport client. A jar set with WithCookieJar
// takes precedence over the client's own jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithCookieJar attaches a jar. Cookies the backend sets (including httpOnly
// session cookies) land in it and are replayed on later requests.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.jar = jar
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New returns a client for the backend at baseURL, which must be an absolute
// http or https URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.jar != nil {
		hc := *c.httpClient
		hc.Jar = c.jar
		c.httpClient = &hc
	}
	return c, nil
}

// ParseBaseURL validates a backend base URL.
func ParseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q must be an absolute http(s) url", ErrInvalidBaseURL, raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Exchange trades an identity-provider access token for a first-party token
// pair and the caller's identity. It succeeds only when the backend answers
// 2xx with both tokens present.
func (c *Client) Exchange(ctx context.Context, providerAccessToken string) (*ExchangeResult, error) {
	if providerAccessToken == "" {
		return nil, ErrMissingToken
	}

	body, err := json.Marshal(struct {
		SupabaseAccessToken string `json:"supabaseAccessToken"`
	}{providerAccessToken})
	if err != nil {
		return nil, fmt.Errorf("portalapi: encode exchange request: %w", err)
	}

	var out ExchangeResult
	if err := c.do(ctx, http.MethodPost, ExchangePath, "", body, &out); err != nil {
		return nil, err
	}
	if !out.Complete() {
		return nil, ErrIncompleteTokenPair
	}
	return &out, nil
}

// Me returns the identity that owns accessToken.
func (c *Client) Me(ctx context.Context, accessToken string) (*Identity, error) {
	if accessToken == "" {
		return nil, ErrMissingToken
	}

	var out Identity
	if err := c.do(ctx, http.MethodGet, MePath, accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProbeSession asks the backend whether the cookies in the jar belong to a
// live session. A 200 body decides; 401 and 403 mean not authenticated.
// Every other outcome is returned as an error (undeterminable).
func (c *Client) ProbeSession(ctx context.Context) (*SharedSession, error) {
	var out SharedSession
	err := c.do(ctx, http.MethodGet, SessionPath, "", nil, &out)
	if err != nil {
		if IsStatus(err, http.StatusUnauthorized) || IsStatus(err, http.StatusForbidden) {
			return &SharedSession{Authenticated: false}, nil
		}
		return nil, err
	}
	if out.Authenticated && out.Identity == nil {
		return nil, fmt.Errorf("%w: authenticated session without user", ErrMalformedResponse)
	}
	if !out.Authenticated {
		out.Identity = nil
	}
	return &out, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = u.Path + path
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body []byte, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return fmt.Errorf("portalapi: build request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("portalapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return fmt.Errorf("portalapi: read %s response: %w", path, err)
	}

	c.logger.Debug("portal api call",
		"method", method, "path", path, "status", resp.StatusCode, "request_id", requestID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, path, err)
	}
	return nil
}

// errorMessage extracts a NestJS-style {"message": ...} body. message may be
// a string or a list of validation strings.
func errorMessage(data []byte) string {
	var body struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}

	var s string
	if err := json.Unmarshal(body.Message, &s); err == nil && s != "" {
		return s
	}
	var list []string
	if err := json.Unmarshal(body.Message, &list); err == nil && len(list) > 0 {
		return strings.Join(list, "; ")
	}
	return body.Error
}
