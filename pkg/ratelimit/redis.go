package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript runs the refill-then-consume token bucket atomically so
// concurrent processes sharing a Redis instance never race on the same
// actor's bucket.
//
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity (max tokens)
// ARGV[3] = current unix time in fractional seconds
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return allowed
`)

// Redis is a Limiter backed by a shared Redis instance, for deployments
// where more than one attestixd process enforces the same actor's quota.
type Redis struct {
	client     *redis.Client
	ratePerSec float64
	burst      int
}

// NewRedis creates a Redis-backed limiter allowing ratePerSec sustained
// operations per actor with a burst capacity of burst.
func NewRedis(client *redis.Client, ratePerSec float64, burst int) *Redis {
	return &Redis{client: client, ratePerSec: ratePerSec, burst: burst}
}

func (r *Redis) Allow(ctx context.Context, actorID string) bool {
	key := fmt.Sprintf("attestix:ratelimit:%s", actorID)
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := tokenBucketScript.Run(ctx, r.client, []string{key}, r.ratePerSec, r.burst, now).Result()
	if err != nil {
		// Fail open on Redis unavailability: the limiter is a throttle, not
		// an authorization check, and a broken Redis must never block the
		// operations it was meant to smooth.
		return true
	}

	allowed, _ := res.(int64)
	return allowed == 1
}
