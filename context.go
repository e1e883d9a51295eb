package portalauth

import "context"

// requestMeta describes the browser a server-side host is acting for.
type requestMeta struct {
	ip        string
	userAgent string
}

type requestMetaKey struct{}

func metaFrom(ctx context.Context) requestMeta {
	if ctx == nil {
		return requestMeta{}
	}
	m, _ := ctx.Value(requestMetaKey{}).(requestMeta)
	return m
}

// WithClientIP records the end user's address on ctx; audit events
// emitted under ctx carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	m := metaFrom(ctx)
	m.ip = ip
	return context.WithValue(ctx, requestMetaKey{}, m)
}

// WithUserAgent records the end user's User-Agent header on ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	m := metaFrom(ctx)
	m.userAgent = userAgent
	return context.WithValue(ctx, requestMetaKey{}, m)
}
