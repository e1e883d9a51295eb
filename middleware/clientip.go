package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the caller address. With trustForwardedFor the first
// X-Forwarded-For hop wins; only enable it behind a proxy that overwrites
// the header.
func ClientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
