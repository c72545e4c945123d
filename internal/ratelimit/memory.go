package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const sweepThreshold = 10_000

// MemoryLimiter is an in-process token bucket limiter. Each key holds a bucket
// of Limit tokens refilled evenly over Window.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow implements Limiter.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	if m.cfg.disabled() {
		return unlimited(), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if len(m.buckets) > sweepThreshold {
		m.sweep(now)
	}

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Every(m.cfg.Window/time.Duration(m.cfg.Limit)), m.cfg.Limit)}
		m.buckets[key] = b
	}
	b.lastSeen = now

	if b.lim.AllowN(now, 1) {
		return Result{
			Allowed:   true,
			Limit:     m.cfg.Limit,
			Remaining: int(b.lim.TokensAt(now)),
		}, nil
	}

	r := b.lim.ReserveN(now, 1)
	retry := r.DelayFrom(now)
	r.CancelAt(now)
	return Result{
		Allowed:    false,
		Limit:      m.cfg.Limit,
		RetryAfter: retry,
	}, nil
}

// sweep drops buckets idle for a full window. Those have refilled and
// behave like new ones.
func (m *MemoryLimiter) sweep(now time.Time) {
	cutoff := now.Add(-m.cfg.Window)
	for key, b := range m.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
