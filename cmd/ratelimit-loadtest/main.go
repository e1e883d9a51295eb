package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/PatonaIM/teamified-accounts-sub013/metrics"
	"github.com/PatonaIM/teamified-accounts-sub013/ratelimit"
)

func main() {
	var (
		keys        = flag.Int("keys", 1000, "number of distinct caller keys")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "checks per phase")
		maxAttempts = flag.Int("max-attempts", 5, "quota per key and window")
		window      = flag.Duration("window", time.Minute, "fixed window length")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		killRedis   = flag.Bool("kill-redis", false, "stop miniredis between phases to exercise the in-process fallback")
		verbose     = flag.Bool("v", false, "log limiter warnings to stderr")
	)
	flag.Parse()

	if *keys <= 0 || *concurrency <= 0 || *ops <= 0 || *maxAttempts <= 0 || *window <= 0 {
		fmt.Fprintln(os.Stderr, "keys, concurrency, ops, max-attempts and window must be > 0")
		os.Exit(2)
	}

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		mr     *miniredis.Miniredis
		client redis.UniversalClient
	)
	if addr == "" {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
		if *killRedis {
			fmt.Fprintln(os.Stderr, "-kill-redis only applies to miniredis; ignoring")
			*killRedis = false
		}
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      []string{addr},
		MaxRetries: -1,
	})
	defer func() { _ = client.Close() }()
	if mr != nil {
		defer mr.Close()
	}

	logOut := io.Discard
	if *verbose {
		logOut = os.Stderr
	}
	m := metrics.New(metrics.Config{Enabled: true, EnableLatencyHistograms: true})
	limiter := ratelimit.New(ratelimit.Config{},
		ratelimit.WithClient(client),
		ratelimit.WithMetrics(m),
		ratelimit.WithLogger(slog.New(slog.NewTextHandler(logOut, nil))),
	)
	defer func() { _ = limiter.Close() }()

	ctx := context.Background()
	policy := ratelimit.Policy{Name: "loadtest", MaxAttempts: *maxAttempts, Window: *window}

	shared := runPhase(ctx, limiter, policy, "shared", *keys, *ops, *concurrency)

	var outage phaseStats
	if *killRedis {
		mr.Close()
		fmt.Println("miniredis stopped; checks now use the in-process counter")
		outage = runPhase(ctx, limiter, policy, "outage", *keys, *ops, *concurrency)
	}

	fmt.Println("---- results ----")
	printStats("shared", shared)
	if *killRedis {
		printStats("outage", outage)
	}

	snap := m.Snapshot()
	fmt.Printf("limiter: allowed=%d denied=%d fallback=%d store_errors=%d fallback_windows=%d\n",
		snap.Counters[metrics.MetricRateLimitAllowed],
		snap.Counters[metrics.MetricRateLimitDenied],
		snap.Counters[metrics.MetricRateLimitFallback],
		snap.Counters[metrics.MetricRateLimitStoreError],
		limiter.FallbackSize(),
	)
}

func runPhase(ctx context.Context, l *ratelimit.Limiter, p ratelimit.Policy, phase string, keys, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		allowed   int64
		denied    int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				key := fmt.Sprintf("%s:%s:caller-%d", p.Name, phase, r.Intn(keys))
				t0 := time.Now()
				res := l.CheckPolicy(ctx, p, key)
				d := time.Since(t0)
				if res.Allowed {
					atomic.AddInt64(&allowed, 1)
				} else {
					atomic.AddInt64(&denied, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, allowed, denied)
}

type phaseStats struct {
	total   time.Duration
	ops     int
	allowed int64
	denied  int64
	p50     time.Duration
	p95     time.Duration
	p99     time.Duration
	opsPerS float64
}

func computeStats(total time.Duration, samples []time.Duration, allowed, denied int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:   total,
		ops:     len(samples),
		allowed: allowed,
		denied:  denied,
		p50:     percentile(samples, 50),
		p95:     percentile(samples, 95),
		p99:     percentile(samples, 99),
		opsPerS: float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d allowed=%d denied=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.allowed,
		s.denied,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
