package portalauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatonaIM/teamified-accounts-sub013/metrics"
	"github.com/PatonaIM/teamified-accounts-sub013/portalapi"
	"github.com/PatonaIM/teamified-accounts-sub013/supabase"
	"github.com/PatonaIM/teamified-accounts-sub013/tokenstore"
)

func assertNoTokens(t *testing.T, s tokenstore.TokenStore) {
	t.Helper()
	_, ok := s.AccessToken()
	assert.False(t, ok, "access token must be absent")
	_, ok = s.RefreshToken()
	assert.False(t, ok, "refresh token must be absent")
}

func TestSignInUsesCallbackOnAppOrigin(t *testing.T) {
	h := newHarness(t, tokenstore.NewMemory())

	require.NoError(t, h.orch.SignIn(context.Background(), "azure"))
	assert.Equal(t, []string{"http://localhost:5173/auth/callback"}, h.provider.redirects)
	assert.Equal(t, []string{auditEventStorageSelected, auditEventSignInStarted}, eventTypes(h.events()))
}

func TestSignInSurfacesProviderErrorVerbatim(t *testing.T) {
	h := newHarness(t, tokenstore.NewMemory())
	providerErr := &supabase.ProviderError{StatusCode: 400, Code: "validation_failed", Message: "Unsupported provider: provider is not enabled"}
	h.provider.signInErr = providerErr

	err := h.orch.SignIn(context.Background(), "github")
	require.Error(t, err)
	assert.Equal(t, "Unsupported provider: provider is not enabled", err.Error())
	var pe *supabase.ProviderError
	assert.True(t, errors.As(err, &pe))

	events := h.events()
	last := events[len(events)-1]
	assert.Equal(t, auditEventSignInFailed, last.EventType)
	assert.Equal(t, string(auditErrProvider), last.Error)
	assert.Equal(t, "github", last.Metadata["provider"])
	assert.Equal(t, uint64(1), h.orch.MetricsSnapshot().Counters[metrics.MetricSignInFailure])
}

func TestHandleCallbackStoresPair(t *testing.T) {
	h := newHarness(t, tokenstore.NewMemory())
	h.provider.setSession("sb-access")

	res, err := h.orch.HandleCallback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, aliceIdentity, res.User)

	access, ok := h.store.AccessToken()
	require.True(t, ok)
	assert.Equal(t, "portal-access", access)
	refresh, ok := h.store.RefreshToken()
	require.True(t, ok)
	assert.Equal(t, "portal-refresh", refresh)

	events := h.events()
	last := events[len(events)-1]
	assert.Equal(t, auditEventExchangeSucceeded, last.EventType)
	assert.Equal(t, "u-alice", last.UserID)
	for _, ev := range events {
		for _, v := range ev.Metadata {
			assert.NotContains(t, v, "portal-access")
		}
	}
}

func TestHandleCallbackWithoutProviderSession(t *testing.T) {
	h := newHarness(t, tokenstore.NewMemory())

	_, err := h.orch.HandleCallback(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Zero(t, h.backend.hitCount(portalapi.ExchangePath), "no exchange without a provider session")

	h.provider.sessionErr = errors.New("refresh rejected")
	_, err = h.orch.HandleCallback(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestHandleCallbackExchangeAtomicity(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   map[string]any
		cause  error
	}{
		{
			name:   "server error after partial success",
			status: http.StatusInternalServerError,
			body:   map[string]any{"accessToken": "portal-access", "message": "user sync failed"},
			cause:  portalapi.ErrUnexpectedStatus,
		},
		{
			name:   "missing refresh token",
			status: http.StatusOK,
			body:   map[string]any{"accessToken": "portal-access", "user": aliceIdentity},
			cause:  portalapi.ErrIncompleteTokenPair,
		},
		{
			name:   "rejected provider token",
			status: http.StatusUnauthorized,
			body:   map[string]any{"message": "Invalid Supabase token"},
			cause:  portalapi.ErrUnexpectedStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tokenstore.NewMemory())
			h.store.SetAccessToken("stale-access")
			h.store.SetRefreshToken("stale-refresh")
			h.provider.setSession("sb-access")
			h.backend.set(func(b *fakeBackend) {
				b.exchangeStatus = tt.status
				b.exchangeBody = tt.body
			})

			res, err := h.orch.HandleCallback(context.Background())
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrNoSession)
			assert.ErrorIs(t, err, tt.cause)
			assertNoTokens(t, h.store)

			events := h.events()
			assert.Equal(t, auditEventExchangeFailed, events[len(events)-1].EventType)
		})
	}
}

func TestIsAuthenticatedReflectsProviderSessionOnly(t *testing.T) {
	h := newHarness(t, tokenstore.NewMemory())
	h.store.SetAccessToken("portal-access")

	assert.False(t, h.orch.IsAuthenticated(context.Background()), "stored tokens do not count")

	h.provider.setSession("sb-access")
	assert.True(t, h.orch.IsAuthenticated(context.Background()))

	h.provider.sessionErr = errors.New("network down")
	assert.False(t, h.orch.IsAuthenticated(context.Background()))
}

func TestCurrentUserSoftFail(t *testing.T) {
	h := newHarness(t, tokenstore.NewMemory())

	assert.Nil(t, h.orch.CurrentUser(context.Background()))
	assert.Zero(t, h.backend.hitCount(portalapi.MePath), "no token means no network call")

	h.store.SetAccessToken("portal-access")
	h.backend.set(func(b *fakeBackend) { b.meStatus = http.StatusInternalServerError })
	assert.Nil(t, h.orch.CurrentUser(context.Background()), "backend failure looks like signed out")
	assert.Equal(t, 1, h.backend.hitCount(portalapi.MePath))

	h.store.SetAccessToken("expired-access")
	assert.Nil(t, h.orch.CurrentUser(context.Background()), "401 looks like signed out")

	h.store.SetAccessToken("portal-access")
	h.backend.set(func(b *fakeBackend) { b.meStatus = http.StatusOK })
	user := h.orch.CurrentUser(context.Background())
	require.NotNil(t, user)
	assert.Equal(t, aliceIdentity, *user)

	snap := h.orch.MetricsSnapshot()
	assert.Equal(t, uint64(2), snap.Counters[metrics.MetricProfileFetchFailure])
	assert.Equal(t, uint64(1), snap.Counters[metrics.MetricProfileFetchSuccess])
}

func TestCurrentUserBackendUnreachable(t *testing.T) {
	p := &fakeProvider{}
	cfg := testConfig(t, "http://127.0.0.1:1")
	store := tokenstore.NewMemory()
	orch, err := New().WithConfig(cfg).WithIdentityProvider(p).WithTokenStore(store).Build()
	require.NoError(t, err)
	defer orch.Close()

	store.SetAccessToken("portal-access")
	assert.Nil(t, orch.CurrentUser(context.Background()))
}

func TestSharedSessionProbeIndependentOfTokenStore(t *testing.T) {
	h := newHarness(t, tokenstore.NewMemory())
	require.Equal(t, tokenstore.KindMemory, h.orch.StorageKind())

	assert.Nil(t, h.orch.CheckSharedSession(context.Background()), "no cookie yet")

	// A failed exchange still leaves the backend's session cookie behind;
	// the prober sees it even though no token was stored.
	h.provider.setSession("sb-access")
	h.backend.set(func(b *fakeBackend) { b.exchangeStatus = http.StatusInternalServerError })
	_, err := h.orch.HandleCallback(context.Background())
	require.Error(t, err)
	assertNoTokens(t, h.store)

	info := h.orch.CheckSharedSession(context.Background())
	require.NotNil(t, info)
	assert.True(t, info.Authenticated)
	assert.Equal(t, "u-alice", info.Identity.ID)

	assertNoTokens(t, h.store)

	events := h.events()
	last := events[len(events)-1]
	assert.Equal(t, auditEventSharedSessionDetected, last.EventType)
	assert.Equal(t, "u-alice", last.UserID)
}

func TestSharedSessionUndeterminableIsNil(t *testing.T) {
	p := &fakeProvider{}
	cfg := testConfig(t, "http://127.0.0.1:1")
	orch, err := New().WithConfig(cfg).WithIdentityProvider(p).WithTokenStore(tokenstore.NewMemory()).Build()
	require.NoError(t, err)
	defer orch.Close()

	assert.Nil(t, orch.CheckSharedSession(context.Background()))
	assert.Equal(t, uint64(1), orch.MetricsSnapshot().Counters[metrics.MetricSharedSessionAbsent])
}

func TestSignOutIsIdempotent(t *testing.T) {
	h := newHarness(t, tokenstore.NewMemory())
	h.provider.setSession("sb-access")
	_, err := h.orch.HandleCallback(context.Background())
	require.NoError(t, err)

	require.NoError(t, h.orch.SignOut(context.Background()))
	assertNoTokens(t, h.store)
	assert.False(t, h.orch.IsAuthenticated(context.Background()))

	require.NoError(t, h.orch.SignOut(context.Background()))
	assertNoTokens(t, h.store)
	assert.Equal(t, 2, h.provider.signOuts)
}

func TestSignOutClearsTokensWhenProviderFails(t *testing.T) {
	h := newHarness(t, tokenstore.NewMemory())
	h.store.SetAccessToken("portal-access")
	h.store.SetRefreshToken("portal-refresh")
	h.provider.signOutErr = errors.New("logout endpoint unreachable")

	err := h.orch.SignOut(context.Background())
	assert.ErrorIs(t, err, h.provider.signOutErr)
	assertNoTokens(t, h.store)

	events := h.events()
	last := events[len(events)-1]
	assert.Equal(t, auditEventSignOut, last.EventType)
	assert.False(t, last.Success)
}

func TestAuditEventsCarryRequestContext(t *testing.T) {
	h := newHarness(t, tokenstore.NewMemory())
	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.7"), "Mozilla/5.0")

	require.NoError(t, h.orch.SignIn(ctx, "azure"))

	events := h.events()
	last := events[len(events)-1]
	assert.Equal(t, "198.51.100.7", last.IP)
	assert.Equal(t, "Mozilla/5.0", last.UserAgent)
}

func TestConcurrentCallbacksNeverMixPairs(t *testing.T) {
	h := newHarness(t, tokenstore.NewMemory())
	h.provider.setSession("sb-access")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.orch.HandleCallback(context.Background())
		}()
		go func() {
			defer wg.Done()
			_ = h.orch.SignOut(context.Background())
		}()
	}
	wg.Wait()

	access, hasAccess := h.store.AccessToken()
	refresh, hasRefresh := h.store.RefreshToken()
	assert.Equal(t, hasAccess, hasRefresh, "pair is either whole or absent")
	if hasAccess {
		assert.Equal(t, "portal-access", access)
		assert.Equal(t, "portal-refresh", refresh)
	}
}

func TestBuildDefaultStoreSelection(t *testing.T) {
	_, srv := newFakeBackend(t)

	t.Run("durable", func(t *testing.T) {
		cfg := testConfig(t, srv.URL)
		orch, err := New().WithConfig(cfg).WithIdentityProvider(&fakeProvider{}).Build()
		require.NoError(t, err)
		defer orch.Close()
		assert.Equal(t, tokenstore.KindDurable, orch.StorageKind())
	})

	t.Run("cookie when cross-app sessions enabled", func(t *testing.T) {
		cfg := testConfig(t, srv.URL)
		cfg.CrossAppSessions = true
		orch, err := New().WithConfig(cfg).WithIdentityProvider(&fakeProvider{}).Build()
		require.NoError(t, err)
		defer orch.Close()
		assert.Equal(t, tokenstore.KindCookie, orch.StorageKind())
	})

	t.Run("cookie store receives backend cookies", func(t *testing.T) {
		cfg := testConfig(t, srv.URL)
		cfg.CrossAppSessions = true
		p := &fakeProvider{}
		p.setSession("sb-access")
		orch, err := New().WithConfig(cfg).WithIdentityProvider(p).Build()
		require.NoError(t, err)
		defer orch.Close()

		_, err = orch.HandleCallback(context.Background())
		require.NoError(t, err)

		host, ok := orch.store.(*tokenstore.Cookie)
		require.True(t, ok)
		u, err := url.Parse(srv.URL)
		require.NoError(t, err)
		cookies := host.Jar().Cookies(u)
		require.Len(t, cookies, 1)
		assert.Equal(t, sessionCookie, cookies[0].Name)
		assert.NotNil(t, orch.CheckSharedSession(context.Background()))
	})

	t.Run("durable pair survives rebuild", func(t *testing.T) {
		cfg := testConfig(t, srv.URL)
		cfg.StorageDir = filepath.Join(t.TempDir(), "auth")

		p := &fakeProvider{}
		p.setSession("sb-access")
		first, err := New().WithConfig(cfg).WithIdentityProvider(p).Build()
		require.NoError(t, err)
		_, err = first.HandleCallback(context.Background())
		require.NoError(t, err)
		first.Close()

		second, err := New().WithConfig(cfg).WithIdentityProvider(p).Build()
		require.NoError(t, err)
		defer second.Close()
		access, ok := second.AccessToken()
		require.True(t, ok)
		assert.Equal(t, "portal-access", access)
	})

	t.Run("explicit store wins", func(t *testing.T) {
		cfg := testConfig(t, srv.URL)
		cfg.CrossAppSessions = true
		orch, err := New().WithConfig(cfg).WithIdentityProvider(&fakeProvider{}).WithTokenStore(tokenstore.NewMemory()).Build()
		require.NoError(t, err)
		defer orch.Close()
		assert.Equal(t, tokenstore.KindMemory, orch.StorageKind())
	})
}

func TestBuildAuditsStorageKind(t *testing.T) {
	h := newHarness(t, tokenstore.NewMemory())
	events := h.events()
	require.NotEmpty(t, events)
	assert.Equal(t, auditEventStorageSelected, events[0].EventType)
	assert.Equal(t, "memory", events[0].Metadata["kind"])
}

func TestBuildDefaultsToSupabaseProvider(t *testing.T) {
	_, srv := newFakeBackend(t)
	orch, err := New().WithConfig(testConfig(t, srv.URL)).Build()
	require.NoError(t, err)
	defer orch.Close()

	_, ok := orch.provider.(*supabase.Client)
	assert.True(t, ok)
	assert.False(t, orch.IsAuthenticated(context.Background()))
}

func TestBuilderSingleUse(t *testing.T) {
	_, srv := newFakeBackend(t)
	b := New().WithConfig(testConfig(t, srv.URL)).WithIdentityProvider(&fakeProvider{})

	orch, err := b.Build()
	require.NoError(t, err)
	defer orch.Close()

	_, err = b.Build()
	assert.ErrorIs(t, err, ErrBuilderUsed)
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	_, err := New().WithConfig(Config{}).Build()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
