package app

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PatonaIM/teamified-accounts-sub013/middleware"
	"github.com/PatonaIM/teamified-accounts-sub013/ratelimit"
)

const gatewayRequestTimeout = 30 * time.Second

type guardedRoute struct {
	path   string
	policy ratelimit.Policy
}

var guardedRoutes = []guardedRoute{
	{path: "/v1/auth/login", policy: ratelimit.LoginPolicy},
	{path: "/v1/auth/password-reset", policy: ratelimit.PasswordResetPolicy},
	{path: "/v1/auth/refresh", policy: ratelimit.RefreshPolicy},
	{path: "/v1/auth/supabase/exchange", policy: ratelimit.ExchangePolicy},
}

type gatewayOptions struct {
	upstream          *url.URL
	limiter           *ratelimit.Limiter
	registry          *prometheus.Registry
	trustForwardedFor bool
}

// newGateway routes the guarded auth endpoints through the limiter and
// proxies everything to the portal API.
func newGateway(opts gatewayOptions) http.Handler {
	upstream := opts.upstream
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
		},
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(gatewayRequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":        "ok",
			"rate_limiting": string(opts.limiter.Mode()),
		})
	})
	r.Handle("/metrics", promhttp.HandlerFor(opts.registry, promhttp.HandlerOpts{}))

	keys := middleware.ByIPAndEndpoint(opts.trustForwardedFor)
	guarded := make(map[string]http.Handler, len(guardedRoutes))
	for _, route := range guardedRoutes {
		guarded[route.path] = middleware.RateLimit(opts.limiter, route.policy, keys)(proxy)
	}
	r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if h, ok := guarded[canonicalPath(req.URL.Path)]; ok {
			h.ServeHTTP(w, req)
			return
		}
		proxy.ServeHTTP(w, req)
	}))

	return r
}

// canonicalPath folds the spellings the portal API routes identically
// (letter case, duplicate or trailing slashes, dot segments) onto one
// form. Only the guard lookup uses it; the proxied path is unchanged.
func canonicalPath(p string) string {
	return path.Clean("/" + strings.ToLower(p))
}
