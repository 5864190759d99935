package memory

import (
	"context"
	"testing"
	"time"
)

func testBreaker(t *testing.T, window time.Duration, max int) *Breaker {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BreakerWindow = window
	cfg.BreakerMaxPerWindow = max
	return NewBreaker(t.TempDir(), cfg)
}

func TestBreaker_AllowsUnderCap(t *testing.T) {
	b := testBreaker(t, time.Minute, 3)
	now := time.Now()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := b.Allow(ctx, now)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed {
			t.Errorf("event %d should be allowed (under cap)", i)
		}
	}
}

func TestBreaker_BlocksOverCap(t *testing.T) {
	b := testBreaker(t, time.Minute, 2)
	now := time.Now()
	ctx := context.Background()

	b.Allow(ctx, now)
	b.Allow(ctx, now)
	allowed, err := b.Allow(ctx, now)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if allowed {
		t.Error("third event within the window should be blocked")
	}
}

func TestBreaker_ResetsAfterWindowExpires(t *testing.T) {
	b := testBreaker(t, time.Minute, 1)
	now := time.Now()
	ctx := context.Background()

	b.Allow(ctx, now)
	blocked, _ := b.Allow(ctx, now)
	if blocked {
		t.Fatal("setup: second call in-window should have been blocked")
	}

	later := now.Add(2 * time.Minute)
	allowed, err := b.Allow(ctx, later)
	if err != nil {
		t.Fatalf("allow after window reset: %v", err)
	}
	if !allowed {
		t.Error("event after window expiry should be allowed again")
	}
}
