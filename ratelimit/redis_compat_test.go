//go:build integration
// +build integration

package ratelimit

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// storeMode names one shared-store backend the compatibility suite runs against.
type storeMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, func())
}

// storeModes always includes miniredis. A real server is added when
// REDIS_ADDR is set, a cluster when REDIS_CLUSTER_ADDRS is set.
func storeModes(t *testing.T) []storeMode {
	t.Helper()
	modes := []storeMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, storeMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				return rdb, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}

	if addrs := os.Getenv("REDIS_CLUSTER_ADDRS"); addrs != "" {
		modes = append(modes, storeMode{
			name: "cluster",
			setup: func(t *testing.T) (redis.UniversalClient, func()) {
				t.Helper()
				var clusterAddrs []string
				for _, a := range strings.Split(addrs, ",") {
					if a = strings.TrimSpace(a); a != "" {
						clusterAddrs = append(clusterAddrs, a)
					}
				}
				rdb := redis.NewClusterClient(&redis.ClusterOptions{Addrs: clusterAddrs})
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis cluster: %v", err)
				}
				return rdb, func() { _ = rdb.Close() }
			},
		})
	}

	return modes
}

func TestStoreCompat_FixedWindow(t *testing.T) {
	for _, mode := range storeModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			l := New(Config{KeyPrefix: "rate_limit:compat:"}, WithClient(rdb), WithLogger(discardLogger()))
			defer l.Close()

			ctx := context.Background()
			key := "login:" + time.Now().Format("150405.000000")
			for i := int64(1); i <= 6; i++ {
				res := l.Check(ctx, key, 5, time.Minute)
				if res.CurrentCount != i {
					t.Fatalf("call %d: expected count %d, got %d", i, i, res.CurrentCount)
				}
				if res.Allowed != (i <= 5) {
					t.Fatalf("call %d: unexpected allowed=%v", i, res.Allowed)
				}
			}

			ttl, err := rdb.TTL(ctx, "rate_limit:compat:"+key).Result()
			if err != nil {
				t.Fatalf("ttl: %v", err)
			}
			if ttl <= 0 || ttl > time.Minute {
				t.Fatalf("expected ttl within (0, 1m], got %s", ttl)
			}
			if l.FallbackSize() != 0 {
				t.Fatalf("expected fallback untouched, got %d entries", l.FallbackSize())
			}
		})
	}
}

func TestStoreCompat_ShortWindowExpires(t *testing.T) {
	for _, mode := range storeModes(t) {
		t.Run(mode.name, func(t *testing.T) {
			if mode.name == "miniredis" {
				t.Skip("miniredis expiry needs FastForward; covered by unit tests")
			}
			rdb, cleanup := mode.setup(t)
			defer cleanup()

			l := New(Config{}, WithClient(rdb), WithLogger(discardLogger()))
			defer l.Close()

			ctx := context.Background()
			key := "refresh:expiry-" + time.Now().Format("150405.000000")
			l.Check(ctx, key, 1, time.Second)
			if res := l.Check(ctx, key, 1, time.Second); res.Allowed {
				t.Fatal("expected second call in window to be denied")
			}

			time.Sleep(1100 * time.Millisecond)
			if res := l.Check(ctx, key, 1, time.Second); !res.Allowed || res.CurrentCount != 1 {
				t.Fatalf("expected fresh window after expiry, got %+v", res)
			}
		})
	}
}
