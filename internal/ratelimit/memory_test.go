package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryLimiterTokenBucket(t *testing.T) {
	ctx := context.Background()
	clock := time.Unix(1_700_000_000, 0)
	l := NewMemoryLimiter(Config{Limit: 3, Window: time.Minute})
	l.now = func() time.Time { return clock }

	for i := range 3 {
		res, err := l.Allow(ctx, "u1")
		if err != nil || !res.Allowed {
			t.Fatalf("event %d should be allowed: %+v, %v", i, res, err)
		}
		if res.Remaining != 2-i {
			t.Fatalf("event %d: expected remaining %d, got %d", i, 2-i, res.Remaining)
		}
	}

	res, _ := l.Allow(ctx, "u1")
	if res.Allowed {
		t.Fatal("fourth event in a burst must be denied")
	}
	// One token refills every 20s.
	if res.RetryAfter < 19*time.Second || res.RetryAfter > 20*time.Second+time.Millisecond {
		t.Fatalf("expected retry after about 20s, got %v", res.RetryAfter)
	}

	if res, _ := l.Allow(ctx, "u2"); !res.Allowed {
		t.Fatal("keys must be limited independently")
	}

	// A denied event does not consume a token.
	clock = clock.Add(21 * time.Second)
	if res, _ := l.Allow(ctx, "u1"); !res.Allowed {
		t.Fatal("a token refilled, expected allow")
	}
	if res, _ := l.Allow(ctx, "u1"); res.Allowed {
		t.Fatal("only one token refilled, expected deny")
	}

	clock = clock.Add(time.Minute)
	for i := range 3 {
		if res, _ := l.Allow(ctx, "u1"); !res.Allowed {
			t.Fatalf("full bucket after a window, event %d denied", i)
		}
	}
}

func TestMemoryLimiterSweepsIdleKeys(t *testing.T) {
	ctx := context.Background()
	clock := time.Unix(1_700_000_000, 0)
	l := NewMemoryLimiter(Config{Limit: 1, Window: time.Second})
	l.now = func() time.Time { return clock }

	for i := range sweepThreshold + 1 {
		if _, err := l.Allow(ctx, fmt.Sprintf("k%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	clock = clock.Add(2 * time.Second)
	if _, err := l.Allow(ctx, "fresh"); err != nil {
		t.Fatal(err)
	}
	if n := len(l.buckets); n != 1 {
		t.Fatalf("expected idle buckets to be swept, have %d", n)
	}
}

func TestMemoryLimiterDisabled(t *testing.T) {
	l := NewMemoryLimiter(Config{})
	for range 100 {
		if res, _ := l.Allow(context.Background(), "k"); !res.Allowed {
			t.Fatal("disabled limiter must allow everything")
		}
	}
}

func TestMemoryLimiterConcurrent(t *testing.T) {
	l := NewMemoryLimiter(PerMinute(50))
	fixed := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return fixed }

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(context.Background(), "shared")
			if err != nil {
				t.Error(err)
				return
			}
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Fatalf("expected exactly 50 allowed, got %d", allowed)
	}
}
