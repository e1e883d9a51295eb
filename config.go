package portalauth

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PatonaIM/teamified-accounts-sub013/metrics"
)

// Config configures an Orchestrator.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	// SupabaseURL and SupabaseAnonKey bootstrap the default identity provider.
	SupabaseURL     string
	SupabaseAnonKey string

	// PortalAPIURL is the backend base for exchange, profile and probe calls.
	PortalAPIURL string

	// AppOrigin is the host application's origin. The sign-in callback is
	// {AppOrigin}/auth/callback unless CallbackURL is set.
	AppOrigin   string
	CallbackURL string

	// CrossAppSessions selects the cookie-aware token store when no store is
	// supplied. Otherwise the durable file store is used.
	CrossAppSessions bool
	// StorageDir holds the durable store files. Empty selects
	// tokenstore.DefaultDir.
	StorageDir string
	// Namespace prefixes token keys in the durable store.
	Namespace string

	// RequestTimeout bounds each backend and provider round trip made with
	// the default HTTP client.
	RequestTimeout time.Duration

	Audit   AuditConfig
	Metrics MetricsConfig
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig = metrics.Config

const (
	defaultCallbackPath   = "/auth/callback"
	defaultRequestTimeout = 15 * time.Second
)

// DefaultConfig returns a Config with every optional field at its default.
// The endpoint fields still need to be filled in.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Namespace:      "teamified",
		RequestTimeout: defaultRequestTimeout,
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := requireAbsoluteURL("SupabaseURL", c.SupabaseURL); err != nil {
		return err
	}
	if strings.TrimSpace(c.SupabaseAnonKey) == "" {
		return fmt.Errorf("%w: SupabaseAnonKey is required", ErrInvalidConfig)
	}
	if err := requireAbsoluteURL("PortalAPIURL", c.PortalAPIURL); err != nil {
		return err
	}

	switch {
	case c.CallbackURL != "":
		if err := requireAbsoluteURL("CallbackURL", c.CallbackURL); err != nil {
			return err
		}
	case c.AppOrigin != "":
		if err := requireAbsoluteURL("AppOrigin", c.AppOrigin); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: AppOrigin or CallbackURL is required", ErrInvalidConfig)
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: RequestTimeout must be >= 0", ErrInvalidConfig)
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return fmt.Errorf("%w: Audit BufferSize must be > 0 when audit is enabled", ErrInvalidConfig)
	}
	return nil
}

// ResolvedCallbackURL is the redirect target handed to the identity provider.
func (c *Config) ResolvedCallbackURL() string {
	if c.CallbackURL != "" {
		return c.CallbackURL
	}
	return strings.TrimRight(c.AppOrigin, "/") + defaultCallbackPath
}

func requireAbsoluteURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, field)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s must be an absolute http(s) url", ErrInvalidConfig, field)
	}
	return nil
}
