// Package ratelimit provides per-key rate limiters: an in-process token
// bucket and a Redis-backed sliding window.
package ratelimit

import (
	"context"
	"time"
)

// Config describes a limit of Limit events per Window. A non-positive Limit disables limiting.
type Config struct {
	Limit  int
	Window time.Duration
}

// PerMinute returns a config allowing n events per minute.
func PerMinute(n int) Config {
	return Config{Limit: n, Window: time.Minute}
}

func (c Config) disabled() bool {
	return c.Limit <= 0 || c.Window <= 0
}

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether an event for key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func unlimited() Result {
	return Result{Allowed: true, Remaining: -1}
}
