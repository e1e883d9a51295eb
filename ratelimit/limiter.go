package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PatonaIM/teamified-accounts-sub013/metrics"
	"github.com/redis/go-redis/v9"
)

// Result is the definite verdict of one Check.
type Result struct {
	Allowed      bool
	CurrentCount int64
}

// Remaining returns how many further attempts fit in the current window.
func (r Result) Remaining(maxAttempts int) int {
	left := int64(maxAttempts) - r.CurrentCount
	if left < 0 {
		return 0
	}
	return int(left)
}

type source uint8

const (
	sourceUnavailable source = iota
	sourcePrimary
	sourceFallback
)

// attempt is the outcome of one counter increment. A primary attempt that
// could not reach the store carries sourceUnavailable and is answered by
// the fallback instead.
type attempt struct {
	count  int64
	source source
	err    error
}

// Mode describes which counter a Limiter consults first.
type Mode string

const (
	ModePrimary      Mode = "primary"
	ModeFallbackOnly Mode = "fallback-only"
)

// Limiter is a fixed-window admission counter backed by a shared Redis store,
// falling back to an in-process counter whenever the store is missing or
// failing. Check never returns an error.
//
// A Limiter owns its store client: construct one per process (or per test)
// and release it with Close.
type Limiter struct {
	cfg      Config
	primary  *redisCounter
	fallback *memoryCounter
	ownsConn bool

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	warned    atomic.Bool
	isClosed  atomic.Bool
	stop      context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClient supplies an existing store client instead of dialing RedisURL.
// The caller keeps ownership; Close leaves it open.
func WithClient(client redis.UniversalClient) Option {
	return func(l *Limiter) {
		if client == nil {
			return
		}
		l.primary = &redisCounter{client: client}
		l.ownsConn = false
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics records allow/deny/fallback counters into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// WithClock replaces time.Now for the fallback window arithmetic.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New builds a Limiter. Without a RedisURL (and without WithClient) it logs
// once and serves every check from the in-process counter. With a RedisURL
// the client connects lazily; a background ping reports the outcome.
func New(cfg Config, opts ...Option) *Limiter {
	cfg = cfg.withDefaults()

	l := &Limiter{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.fallback = newMemoryCounter(l.now)

	if l.primary == nil && cfg.RedisURL != "" {
		client, err := dial(cfg)
		if err != nil {
			l.logger.Warn("rate limiter store misconfigured, using in-process counter",
				"error", err)
		} else {
			l.primary = &redisCounter{client: client}
			l.ownsConn = true
		}
	}

	if l.primary == nil {
		l.logger.Info("rate limiter running without shared store, using in-process counter")
		return l
	}

	l.primary.timeout = cfg.OperationTimeout

	ctx, cancel := context.WithCancel(context.Background())
	l.stop = cancel
	go l.probe(ctx)

	return l
}

func dial(cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRedisURL, err)
	}
	opts.DialTimeout = cfg.DialTimeout
	// The fallback answers immediately; client-side retries would only delay it.
	opts.MaxRetries = -1
	return redis.NewClient(opts), nil
}

func (l *Limiter) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.DialTimeout+l.cfg.OperationTimeout)
	defer cancel()

	if err := l.primary.ping(ctx); err != nil {
		if l.closed() {
			return
		}
		l.storeFailed(err)
		return
	}
	l.logger.Info("rate limiter connected to shared store")
}

// Check counts one request for key and reports whether it fits within
// maxAttempts per window. The full store key is KeyPrefix+key.
func (l *Limiter) Check(ctx context.Context, key string, maxAttempts int, window time.Duration) Result {
	start := time.Now()
	if ctx == nil {
		ctx = context.Background()
	}

	fullKey := l.cfg.KeyPrefix + key
	a := l.increment(ctx, fullKey, window)

	res := Result{
		Allowed:      a.count <= int64(maxAttempts),
		CurrentCount: a.count,
	}

	if a.source == sourceFallback {
		l.metrics.Inc(metrics.MetricRateLimitFallback)
	}
	if res.Allowed {
		l.metrics.Inc(metrics.MetricRateLimitAllowed)
	} else {
		l.metrics.Inc(metrics.MetricRateLimitDenied)
		l.logger.Debug("rate limit exceeded", "key", key, "count", a.count, "max_attempts", maxAttempts)
	}
	l.metrics.Observe(metrics.MetricRateLimitLatency, time.Since(start))

	return res
}

// CheckPolicy is Check with the quota taken from p.
func (l *Limiter) CheckPolicy(ctx context.Context, p Policy, key string) Result {
	return l.Check(ctx, key, p.MaxAttempts, p.Window)
}

func (l *Limiter) increment(ctx context.Context, fullKey string, window time.Duration) attempt {
	if l.primary != nil && !l.closed() {
		a := l.primary.increment(ctx, fullKey, window)
		if a.source == sourcePrimary {
			return a
		}
		l.storeFailed(a.err)
	}
	return l.fallback.increment(fullKey, window)
}

// storeFailed logs the first store failure at warn level and every later
// one at debug level so an outage cannot flood the logs.
func (l *Limiter) storeFailed(err error) {
	l.metrics.Inc(metrics.MetricRateLimitStoreError)
	if l.warned.CompareAndSwap(false, true) {
		l.logger.Warn("rate limiter store unavailable, using in-process counter",
			"error", err)
		return
	}
	l.logger.Debug("rate limiter store still unavailable", "error", err)
}

// Mode reports whether a shared store is configured.
func (l *Limiter) Mode() Mode {
	if l.primary == nil {
		return ModeFallbackOnly
	}
	return ModePrimary
}

// FallbackSize reports how many windows the in-process counter holds.
func (l *Limiter) FallbackSize() int {
	return l.fallback.size()
}

// MetricsSnapshot exposes the limiter's counters to exporters.
func (l *Limiter) MetricsSnapshot() metrics.Snapshot {
	return l.metrics.Snapshot()
}

// Close releases the shared-store connection when the Limiter opened it.
// Checks made after Close use the in-process counter. Safe to call twice.
func (l *Limiter) Close() error {
	l.closeOnce.Do(func() {
		l.isClosed.Store(true)
		if l.stop != nil {
			l.stop()
		}
		if l.ownsConn && l.primary != nil {
			l.closeErr = l.primary.client.Close()
		}
	})
	return l.closeErr
}

func (l *Limiter) closed() bool {
	return l.isClosed.Load()
}
