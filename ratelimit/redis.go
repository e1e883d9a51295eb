package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWindow counts one hit and arms the window TTL in a single atomic step.
// A key found without a TTL is re-armed, so a counter can never outlive its
// window.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("TTL", KEYS[1]) == -1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// redisCounter is the shared fixed-window counter, consistent across every
// process sharing the store.
type redisCounter struct {
	client  redis.UniversalClient
	timeout time.Duration
}

func (c *redisCounter) increment(ctx context.Context, key string, window time.Duration) attempt {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	secs := int64(ttlSeconds(window) / time.Second)
	count, err := incrWindow.Run(ctx, c.client, []string{key}, secs).Int64()
	if err != nil {
		return attempt{source: sourceUnavailable, err: fmt.Errorf("%w: %v", ErrStoreUnavailable, err)}
	}
	return attempt{count: count, source: sourcePrimary}
}

func (c *redisCounter) ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ttlSeconds converts a window to whole seconds, the store's TTL granularity.
// Partial seconds round up and the result is never below one second.
func ttlSeconds(window time.Duration) time.Duration {
	secs := int64(math.Ceil(window.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
