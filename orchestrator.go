package portalauth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PatonaIM/teamified-accounts-sub013/metrics"
	"github.com/PatonaIM/teamified-accounts-sub013/portalapi"
	"github.com/PatonaIM/teamified-accounts-sub013/tokenstore"
)

// Orchestrator is the sign-in façade. Its methods are safe for concurrent
// use after Build.
type Orchestrator struct {
	config      Config
	callbackURL string

	provider IdentityProvider
	store    tokenstore.TokenStore
	prober   SessionProber
	api      *portalapi.Client

	// pairMu keeps a token pair write or clear from interleaving with another.
	pairMu sync.Mutex

	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   *auditDispatcher
}

func (o *Orchestrator) announceStorage() {
	kind := o.store.Kind()
	o.logger.Info("token storage selected", "kind", kind.String(), "cross_app_sessions", o.config.CrossAppSessions)
	o.emitAudit(context.Background(), auditEventStorageSelected, true, "", nil, func() map[string]string {
		return map[string]string{"kind": kind.String()}
	})
}

// SignIn starts the identity provider's redirect handshake with the
// configured callback URL. The provider's error is returned as is.
func (o *Orchestrator) SignIn(ctx context.Context, provider string) error {
	o.metrics.Inc(metrics.MetricSignInStarted)
	o.emitAudit(ctx, auditEventSignInStarted, true, "", nil, func() map[string]string {
		return map[string]string{"provider": provider}
	})

	if err := o.provider.SignIn(ctx, provider, o.callbackURL); err != nil {
		o.metrics.Inc(metrics.MetricSignInFailure)
		o.emitAudit(ctx, auditEventSignInFailed, false, "", err, func() map[string]string {
			return map[string]string{"provider": provider}
		})
		return err
	}
	return nil
}

// HandleCallback exchanges the provider session for a first-party token
// pair and stores it. Either both tokens are stored or, on any failure,
// none are: the store is cleared and the error wraps ErrNoSession.
func (o *Orchestrator) HandleCallback(ctx context.Context) (*ExchangeResult, error) {
	tok, err := o.provider.Session(ctx)
	if err != nil || tok == nil || tok.AccessToken == "" {
		o.metrics.Inc(metrics.MetricNoProviderSession)
		o.emitAudit(ctx, auditEventExchangeFailed, false, "", ErrNoSession, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
		}
		return nil, ErrNoSession
	}

	start := time.Now()
	res, err := o.api.Exchange(ctx, tok.AccessToken)
	o.metrics.Observe(metrics.MetricExchangeLatency, time.Since(start))
	if err != nil {
		o.clearPair()
		o.metrics.Inc(metrics.MetricExchangeFailure)
		o.logger.Warn("token exchange failed", "error", err)
		o.emitAudit(ctx, auditEventExchangeFailed, false, "", err, nil)
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}

	o.pairMu.Lock()
	o.store.SetAccessToken(res.AccessToken)
	o.store.SetRefreshToken(res.RefreshToken)
	o.pairMu.Unlock()

	o.metrics.Inc(metrics.MetricExchangeSuccess)
	o.emitAudit(ctx, auditEventExchangeSucceeded, true, res.User.ID, nil, nil)
	return res, nil
}

// IsAuthenticated reports whether the identity provider holds a session.
// It does not consult the token store.
func (o *Orchestrator) IsAuthenticated(ctx context.Context) bool {
	tok, err := o.provider.Session(ctx)
	if err != nil {
		o.logger.Debug("provider session unavailable", "error", err)
		return false
	}
	return tok != nil
}

// CurrentUser returns the identity behind the stored access token. It
// returns nil without a network call when no token is stored, and nil when
// the backend fails for any reason. The two cases look the same to the
// caller; the failure is logged.
func (o *Orchestrator) CurrentUser(ctx context.Context) *PortalIdentity {
	access, ok := o.store.AccessToken()
	if !ok {
		return nil
	}

	user, err := o.api.Me(ctx, access)
	if err != nil {
		o.metrics.Inc(metrics.MetricProfileFetchFailure)
		o.logger.Warn("profile fetch failed, reporting no current user", "error", err)
		o.emitAudit(ctx, auditEventProfileUnavailable, false, "", err, nil)
		return nil
	}

	o.metrics.Inc(metrics.MetricProfileFetchSuccess)
	return user
}

// SignOut ends the provider session and clears the token store. Both steps
// always run. The returned error reports a provider failure for logging
// only; the store is cleared regardless. Calling SignOut again is harmless.
func (o *Orchestrator) SignOut(ctx context.Context) error {
	providerErr := o.provider.SignOut(ctx)
	o.clearPair()

	o.metrics.Inc(metrics.MetricSignOut)
	o.emitAudit(ctx, auditEventSignOut, providerErr == nil, "", providerErr, nil)

	if providerErr != nil {
		o.logger.Warn("provider sign-out failed, local tokens cleared", "error", providerErr)
		return fmt.Errorf("provider sign-out: %w", providerErr)
	}
	return nil
}

// CheckSharedSession asks the dedicated prober whether a sibling
// application already has a live session. Nil means "not authenticated" or
// "could not tell"; treat both as signed out.
func (o *Orchestrator) CheckSharedSession(ctx context.Context) *SharedSessionInfo {
	info := o.prober.CheckSession(ctx)
	if info == nil || !info.Authenticated {
		o.metrics.Inc(metrics.MetricSharedSessionAbsent)
		return nil
	}

	o.metrics.Inc(metrics.MetricSharedSessionDetected)
	userID := ""
	if info.Identity != nil {
		userID = info.Identity.ID
	}
	o.emitAudit(ctx, auditEventSharedSessionDetected, true, userID, nil, nil)
	return info
}

// AccessToken returns the stored access token for authorizing API calls.
func (o *Orchestrator) AccessToken() (string, bool) {
	return o.store.AccessToken()
}

// StorageKind reports the token store variant in effect.
func (o *Orchestrator) StorageKind() tokenstore.Kind {
	return o.store.Kind()
}

// CallbackURL is the redirect target handed to the identity provider.
func (o *Orchestrator) CallbackURL() string {
	return o.callbackURL
}

// MetricsSnapshot copies the orchestrator's counters for exporters.
func (o *Orchestrator) MetricsSnapshot() metrics.Snapshot {
	return o.metrics.Snapshot()
}

// AuditDropped reports audit events lost to a full buffer.
func (o *Orchestrator) AuditDropped() uint64 {
	return o.audit.Dropped()
}

// Close flushes pending audit events.
func (o *Orchestrator) Close() {
	if o == nil {
		return
	}
	o.audit.Close()
}

func (o *Orchestrator) clearPair() {
	o.pairMu.Lock()
	defer o.pairMu.Unlock()
	o.store.Clear()
}
