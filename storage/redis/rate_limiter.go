package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/replygate/pkg/replygate"
)

// slidingWindowScript evicts sends older than the widest window and checks every
// (window, limit) pair in ARGV order. Scores are unix milliseconds.
// Returns {allowed, remaining, resetMillis, limit} for the tightest window.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local horizon = tonumber(ARGV[2])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - horizon)

	local bestRemaining = -1
	local bestReset = 0
	local bestLimit = -1

	local i = 3
	while i <= #ARGV do
		local window = tonumber(ARGV[i])
		local limit = tonumber(ARGV[i + 1])
		local cutoff = now - window

		local count = redis.call('ZCOUNT', key, '(' .. cutoff, '+inf')
		local reset = now + window
		if count > 0 then
			local oldest = redis.call('ZRANGEBYSCORE', key, '(' .. cutoff, '+inf', 'WITHSCORES', 'LIMIT', 0, 1)
			reset = tonumber(oldest[2]) + window
		end

		local remaining = limit - count
		if remaining <= 0 then
			return {0, 0, reset, limit}
		end
		if bestRemaining < 0 or remaining < bestRemaining then
			bestRemaining = remaining
			bestReset = reset
			bestLimit = limit
		end
		i = i + 2
	end

	return {1, bestRemaining, bestReset, bestLimit}
`)

// RateLimiter implements replygate.RateLimiter with one sorted set per user,
// so every engine instance sharing the Redis sees the same send history.
type RateLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRateLimiter creates a Redis-backed rate limiter.
// keyPrefix defaults to "replygate:".
func NewRateLimiter(client redis.UniversalClient, keyPrefix string) (*RateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if keyPrefix == "" {
		keyPrefix = "replygate:"
	}
	return &RateLimiter{client: client, keyPrefix: keyPrefix}, nil
}

func (r *RateLimiter) key(userID string) string {
	return r.keyPrefix + "ratelimit:" + userID
}

// Check implements replygate.RateLimiter
func (r *RateLimiter) Check(
	ctx context.Context, userID string, limit replygate.RateLimit, now time.Time,
) (bool, *replygate.RateLimitInfo, error) {
	windows := limit.Windows()
	if len(windows) == 0 {
		return true, &replygate.RateLimitInfo{Remaining: -1, Limit: replygate.Unlimited}, nil
	}

	args := []interface{}{now.UnixMilli(), replygate.HourWindow.Milliseconds()}
	for _, w := range windows {
		args = append(args, w.Duration.Milliseconds(), w.Limit)
	}

	result, err := slidingWindowScript.Run(ctx, r.client, []string{r.key(userID)}, args...).Result()
	if err != nil {
		return false, nil, fmt.Errorf("failed to execute rate limit script: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 4 {
		return false, nil, fmt.Errorf("unexpected result from rate limit script: %v", result)
	}

	parsed := make([]int64, len(values))
	for i, v := range values {
		n, ok := v.(int64)
		if !ok {
			return false, nil, fmt.Errorf("invalid rate limit script value at %d: %T", i, v)
		}
		parsed[i] = n
	}

	info := &replygate.RateLimitInfo{
		Remaining: int(parsed[1]),
		ResetTime: time.UnixMilli(parsed[2]).UTC(),
		Limit:     int(parsed[3]),
	}
	return parsed[0] == 1, info, nil
}

// Record implements replygate.RateLimiter
func (r *RateLimiter) Record(ctx context.Context, userID string, now time.Time) error {
	key := r.key(userID)
	score := now.UnixMilli()
	member := strconv.FormatInt(score, 10) + ":" + uuid.NewString()

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member})
		pipe.PExpire(ctx, key, replygate.HourWindow)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record send: %w", err)
	}
	return nil
}
