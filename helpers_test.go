package portalauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/PatonaIM/teamified-accounts-sub013/portalapi"
	"github.com/PatonaIM/teamified-accounts-sub013/tokenstore"
)

// fakeProvider is an in-memory IdentityProvider.
type fakeProvider struct {
	mu         sync.Mutex
	session    *oauth2.Token
	sessionErr error
	signInErr  error
	signOutErr error
	redirects  []string
	signOuts   int
}

func (p *fakeProvider) SignIn(_ context.Context, _, redirectTo string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.redirects = append(p.redirects, redirectTo)
	return p.signInErr
}

func (p *fakeProvider) Session(context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, p.sessionErr
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOuts++
	p.session = nil
	return p.signOutErr
}

func (p *fakeProvider) setSession(access string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = &oauth2.Token{AccessToken: access, Expiry: time.Now().Add(time.Hour)}
}

const sessionCookie = "portal_session"

var aliceIdentity = PortalIdentity{
	ID:        "u-alice",
	Email:     "alice@example.com",
	FirstName: "Alice",
	LastName:  "Ng",
	Roles:     []Role{{RoleType: "client_admin", Scope: "client"}},
}

// fakeBackend serves the portal auth endpoints.
type fakeBackend struct {
	mu             sync.Mutex
	exchangeStatus int
	exchangeBody   map[string]any
	meStatus       int
	hits           map[string]int
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	be := &fakeBackend{
		exchangeStatus: http.StatusOK,
		exchangeBody: map[string]any{
			"accessToken":  "portal-access",
			"refreshToken": "portal-refresh",
			"user":         aliceIdentity,
		},
		meStatus: http.StatusOK,
		hits:     map[string]int{},
	}
	srv := httptest.NewServer(be)
	t.Cleanup(srv.Close)
	return be, srv
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hits[r.URL.Path]++

	switch r.URL.Path {
	case portalapi.ExchangePath:
		// The session cookie is set even when the exchange then fails, as a
		// backend that partially succeeded would.
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "live", Path: "/", HttpOnly: true})
		writeJSON(w, b.exchangeStatus, b.exchangeBody)
	case portalapi.MePath:
		if r.Header.Get("Authorization") != "Bearer portal-access" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized"})
			return
		}
		writeJSON(w, b.meStatus, aliceIdentity)
	case portalapi.SessionPath:
		if ck, err := r.Cookie(sessionCookie); err != nil || ck.Value != "live" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": aliceIdentity})
	default:
		http.NotFound(w, r)
	}
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *fakeBackend) hitCount(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func testConfig(t *testing.T, portalAPIURL string) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SupabaseURL = "https://project.supabase.co"
	cfg.SupabaseAnonKey = "anon-key"
	cfg.PortalAPIURL = portalAPIURL
	cfg.AppOrigin = "http://localhost:5173"
	cfg.StorageDir = t.TempDir()
	return cfg
}

type harness struct {
	orch     *Orchestrator
	provider *fakeProvider
	backend  *fakeBackend
	store    tokenstore.TokenStore
	sink     *ChannelSink
}

func newHarness(t *testing.T, store tokenstore.TokenStore) *harness {
	t.Helper()
	be, srv := newFakeBackend(t)
	p := &fakeProvider{}
	sink := NewChannelSink(64)

	cfg := testConfig(t, srv.URL)
	cfg.Audit = AuditConfig{Enabled: true, BufferSize: 64, DropIfFull: false}

	b := New().
		WithConfig(cfg).
		WithIdentityProvider(p).
		WithAuditSink(sink)
	if store != nil {
		b.WithTokenStore(store)
	}
	orch, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(orch.Close)

	return &harness{orch: orch, provider: p, backend: be, store: orch.store, sink: sink}
}

// events flushes the dispatcher and returns everything the sink received.
func (h *harness) events() []AuditEvent {
	h.orch.Close()
	var out []AuditEvent
	for {
		select {
		case ev := <-h.sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []AuditEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.EventType)
	}
	return out
}
