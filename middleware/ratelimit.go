package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/PatonaIM/teamified-accounts-sub013/ratelimit"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderRetry     = "Retry-After"
)

// KeyFunc maps a request to the caller key counted under a policy.
type KeyFunc func(r *http.Request, p ratelimit.Policy) string

type rejection struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RateLimit admits at most p.MaxAttempts requests per p.Window for each key.
// A nil key function selects ByIPAndEndpoint with direct client addresses.
func RateLimit(l *ratelimit.Limiter, p ratelimit.Policy, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ByIPAndEndpoint(false)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil {
				next.ServeHTTP(w, r)
				return
			}

			res := l.CheckPolicy(r.Context(), p, key(r, p))

			h := w.Header()
			h.Set(HeaderLimit, strconv.Itoa(p.MaxAttempts))
			h.Set(HeaderRemaining, strconv.Itoa(res.Remaining(p.MaxAttempts)))

			if !res.Allowed {
				// The counter's exact expiry is not known here; the full
				// window is an upper bound.
				h.Set(HeaderRetry, strconv.Itoa(int(math.Ceil(p.Window.Seconds()))))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(rejection{
					Error:   "rate_limited",
					Message: "too many attempts",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ByIP keys every policy on the caller address alone, so all guarded
// endpoints share one quota per address and policy window.
func ByIP(trustForwardedFor bool) KeyFunc {
	return func(r *http.Request, _ ratelimit.Policy) string {
		return ClientIP(r, trustForwardedFor)
	}
}

// ByIPAndEndpoint keys on "<policy>:<ip>".
func ByIPAndEndpoint(trustForwardedFor bool) KeyFunc {
	return func(r *http.Request, p ratelimit.Policy) string {
		return p.Name + ":" + ClientIP(r, trustForwardedFor)
	}
}
