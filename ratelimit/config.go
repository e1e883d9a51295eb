package ratelimit

import (
	"os"
	"strings"
	"time"
)

// RedisURLEnv names the environment variable holding the shared-store
// connection string. Leaving it unset selects fallback-only mode.
const RedisURLEnv = "REDIS_URL"

const (
	// DefaultKeyPrefix namespaces every counter in the shared store.
	DefaultKeyPrefix = "rate_limit:"
	// DefaultOperationTimeout bounds each shared-store round trip so an
	// unreachable store degrades to the fallback quickly.
	DefaultOperationTimeout = 500 * time.Millisecond
	// DefaultDialTimeout bounds connection establishment.
	DefaultDialTimeout = 2 * time.Second
)

// Config configures a [Limiter].
type Config struct {
	// RedisURL is a redis:// or rediss:// connection string. Empty means the
	// limiter runs on the in-process counter only.
	RedisURL string

	// KeyPrefix is prepended to every caller key. Defaults to "rate_limit:".
	KeyPrefix string

	// OperationTimeout bounds each INCR/EXPIRE round trip.
	OperationTimeout time.Duration

	// DialTimeout bounds connection establishment to the shared store.
	DialTimeout time.Duration
}

// ConfigFromEnv builds a Config from REDIS_URL.
func ConfigFromEnv() Config {
	return Config{RedisURL: strings.TrimSpace(os.Getenv(RedisURLEnv))}
}

func (c Config) withDefaults() Config {
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	return c
}

// Policy is a named quota applied to one class of endpoint.
type Policy struct {
	Name        string
	MaxAttempts int
	Window      time.Duration
}

var (
	// LoginPolicy guards credential submission.
	LoginPolicy = Policy{Name: "login", MaxAttempts: 5, Window: time.Minute}
	// PasswordResetPolicy guards reset requests, which send mail.
	PasswordResetPolicy = Policy{Name: "password_reset", MaxAttempts: 3, Window: 15 * time.Minute}
	// RefreshPolicy guards token refresh.
	RefreshPolicy = Policy{Name: "refresh", MaxAttempts: 10, Window: time.Minute}
	// ExchangePolicy guards the identity-provider token exchange.
	ExchangePolicy = Policy{Name: "exchange", MaxAttempts: 10, Window: time.Minute}
)
