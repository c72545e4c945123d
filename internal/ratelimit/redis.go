package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript records an event in a sorted set if fewer than limit
// events fall inside the window. Returns {allowed, remaining, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local counter_key = KEYS[2]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)

	if count < limit then
		local counter = redis.call('INCR', counter_key)
		redis.call('ZADD', key, now, now .. ':' .. counter)
		redis.call('PEXPIRE', key, window_ms)
		redis.call('PEXPIRE', counter_key, window_ms)
		return {1, limit - count - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry_after = 0
	if #oldest >= 2 then
		retry_after = tonumber(oldest[2]) + window_ms - now
	end
	return {0, 0, retry_after}
`)

// RedisLimiter is a sliding window limiter shared across processes through Redis.
type RedisLimiter struct {
	client redis.Scripter
	cfg    Config
	prefix string
}

// NewRedisLimiter creates a limiter storing its windows under prefix.
func NewRedisLimiter(client redis.Scripter, cfg Config, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg, prefix: prefix}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	if l.cfg.disabled() {
		return unlimited(), nil
	}

	now := time.Now()
	redisKey := l.prefix + key
	values, err := slidingWindowScript.Run(ctx, l.client,
		[]string{redisKey, redisKey + ":counter"},
		now.UnixMilli(),
		now.Add(-l.cfg.Window).UnixMilli(),
		l.cfg.Limit,
		l.cfg.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("run rate limit script: %w", err)
	}
	if len(values) != 3 {
		return Result{}, fmt.Errorf("unexpected rate limit response length: %d", len(values))
	}

	res := Result{
		Allowed:   values[0] == 1,
		Limit:     l.cfg.Limit,
		Remaining: int(values[1]),
	}
	if !res.Allowed && values[2] > 0 {
		res.RetryAfter = time.Duration(values[2]) * time.Millisecond
	}
	return res, nil
}
