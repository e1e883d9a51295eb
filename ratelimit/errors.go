package ratelimit

import "errors"

var (
	// ErrStoreUnavailable marks a shared-store failure. It is logged and
	// counted, never returned to Check callers.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
	// ErrInvalidRedisURL is logged when REDIS_URL cannot be parsed.
	ErrInvalidRedisURL = errors.New("invalid redis url")
)
