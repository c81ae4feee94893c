package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestSixteenthRequestIsLimited(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 1; i <= 15; i++ {
		res, err := m.Allow(ctx, "write:10.0.0.1", 15, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != 15-i {
			t.Fatalf("request %d: remaining %d", i, res.Remaining)
		}
		now = now.Add(time.Second)
	}
	res, _ := m.Allow(ctx, "write:10.0.0.1", 15, time.Minute)
	if res.Allowed {
		t.Fatal("16th request should be limited")
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("expected positive retry hint, got %s", res.RetryAfter)
	}
	if res.RetryAfter != 45*time.Second {
		t.Fatalf("expected 45s until the first request leaves the window, got %s", res.RetryAfter)
	}
}

func TestWindowSlides(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = m.Allow(ctx, "k", 2, time.Minute)
		now = now.Add(30 * time.Second)
	}
	// t=60s: the first request has just left the window
	if res, _ := m.Allow(ctx, "k", 2, time.Minute); !res.Allowed {
		t.Fatal("expected the window to slide")
	}
	if res, _ := m.Allow(ctx, "k", 2, time.Minute); res.Allowed {
		t.Fatal("expected limit with two requests in the window")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if res, _ := m.Allow(ctx, "a", 1, time.Minute); !res.Allowed {
		t.Fatal("a should be allowed")
	}
	if res, _ := m.Allow(ctx, "b", 1, time.Minute); !res.Allowed {
		t.Fatal("b should be allowed")
	}
	if res, _ := m.Allow(ctx, "a", 1, time.Minute); res.Allowed {
		t.Fatal("a should be limited")
	}
}
