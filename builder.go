package portalauth

import (
	"log/slog"
	"net/http"

	"github.com/PatonaIM/teamified-accounts-sub013/metrics"
	"github.com/PatonaIM/teamified-accounts-sub013/portalapi"
	"github.com/PatonaIM/teamified-accounts-sub013/supabase"
	"github.com/PatonaIM/teamified-accounts-sub013/tokenstore"
)

// Builder assembles an Orchestrator. Configure it during initialization,
// call Build once, then discard it.
type Builder struct {
	config Config

	provider   IdentityProvider
	store      tokenstore.TokenStore
	httpClient *http.Client
	logger     *slog.Logger
	auditSink  AuditSink

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration, including metrics settings
// made earlier on this Builder.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithIdentityProvider replaces the Supabase client built from Config.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithTokenStore sets the store for the first-party token pair. Without it
// Build picks the cookie-aware store when Config.CrossAppSessions is set and
// the durable file store otherwise.
func (b *Builder) WithTokenStore(s tokenstore.TokenStore) *Builder {
	b.store = s
	return b
}

// WithHTTPClient sets the transport for backend and provider calls.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets where audit events go when Config.Audit is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles exchange latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the collaborators. It performs
// no network I/O.
func (b *Builder) Build() (*Orchestrator, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	hc := b.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.RequestTimeout}
	}

	// The prober is always built from configuration, never from the host's
	// token store.
	prober, err := tokenstore.NewProbe(cfg.PortalAPIURL, hc, tokenstore.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	// Sharing the prober's jar lets cookies set by the exchange response
	// reach later probes.
	api, err := portalapi.New(cfg.PortalAPIURL,
		portalapi.WithHTTPClient(hc),
		portalapi.WithCookieJar(prober.Jar()),
		portalapi.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		store, err = defaultTokenStore(cfg, hc, prober.Jar(), logger)
		if err != nil {
			return nil, err
		}
	}

	provider := b.provider
	if provider == nil {
		provider, err = supabase.New(supabase.Config{
			URL:        cfg.SupabaseURL,
			AnonKey:    cfg.SupabaseAnonKey,
			HTTPClient: hc,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
	}

	o := &Orchestrator{
		config:      cfg,
		callbackURL: cfg.ResolvedCallbackURL(),
		provider:    provider,
		store:       store,
		prober:      prober,
		api:         api,
		logger:      logger,
		metrics:     metrics.New(cfg.Metrics),
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink, logger),
	}

	b.built = true

	o.announceStorage()
	return o, nil
}

// defaultTokenStore picks the store used when the host supplies none. The
// cookie-aware store shares jar with the exchange client so backend-set
// session cookies land in it.
func defaultTokenStore(cfg Config, hc *http.Client, jar http.CookieJar, logger *slog.Logger) (tokenstore.TokenStore, error) {
	opts := []tokenstore.Option{
		tokenstore.WithNamespace(cfg.Namespace),
		tokenstore.WithLogger(logger),
	}
	backend := durableBackend(cfg, logger)

	if cfg.CrossAppSessions {
		return tokenstore.NewCookie(tokenstore.CookieConfig{
			PortalAPIURL: cfg.PortalAPIURL,
			Backend:      backend,
			Jar:          jar,
			HTTPClient:   hc,
		}, opts...)
	}
	return tokenstore.NewDurable(backend, opts...), nil
}

// durableBackend opens the file backend. When the directory is unusable the
// tokens are kept in memory for this process and the degradation is logged.
func durableBackend(cfg Config, logger *slog.Logger) tokenstore.Backend {
	dir := cfg.StorageDir
	if dir == "" {
		var err error
		dir, err = tokenstore.DefaultDir()
		if err != nil {
			logger.Warn("durable token storage unavailable, tokens will not survive restart", "error", err)
			return tokenstore.NewMemoryBackend()
		}
	}

	fb, err := tokenstore.NewFileBackend(dir)
	if err != nil {
		logger.Warn("durable token storage unavailable, tokens will not survive restart",
			"dir", dir, "error", err)
		return tokenstore.NewMemoryBackend()
	}
	return fb
}
