package supabase

import (
	"fmt"
	"html"
	"net/http"
)

// CallbackHandler serves the redirect target. It completes the sign-in in
// progress with the code (or provider error) in the query string and wakes
// WaitForCallback.
func (c *Client) CallbackHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		c.mu.Lock()
		pending := c.pending
		c.mu.Unlock()
		if pending == nil {
			writePage(w, http.StatusBadRequest, "Sign-in failed", ErrNoPendingSignIn.Error())
			return
		}

		err := c.completeCallback(r)
		pending.finish(err)
		if err != nil {
			c.logger.Warn("sign-in callback failed", "error", err)
			writePage(w, http.StatusBadRequest, "Sign-in failed", err.Error())
			return
		}
		writePage(w, http.StatusOK, "Signed in", "You can close this window and return to the terminal.")
	})
}

func (c *Client) completeCallback(r *http.Request) error {
	q := r.URL.Query()
	if code := q.Get("error"); code != "" {
		msg := q.Get("error_description")
		if msg == "" {
			msg = code
		}
		return &ProviderError{StatusCode: http.StatusBadRequest, Code: code, Message: msg}
	}
	return c.ExchangeCode(r.Context(), q.Get("code"))
}

func writePage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>%[1]s</title>
<style>body{font-family:sans-serif;margin:40px;text-align:center}</style></head>
<body><h1>%[1]s</h1><p>%[2]s</p></body>
</html>`, html.EscapeString(title), html.EscapeString(message))
}
