package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryAllow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := m.Allow(ctx, "k", 2, time.Hour); !ok {
			t.Fatalf("call %d must be allowed", i)
		}
	}
	if ok, _ := m.Allow(ctx, "k", 2, time.Hour); ok {
		t.Fatalf("third call must be blocked")
	}
	if ok, _ := m.Allow(ctx, "other", 2, time.Hour); !ok {
		t.Fatalf("keys must be independent")
	}

	now = now.Add(time.Hour + time.Second)
	if ok, _ := m.Allow(ctx, "k", 2, time.Hour); !ok {
		t.Fatalf("new window must allow again")
	}
	if ok, _ := m.Allow(ctx, "k", 0, time.Hour); !ok {
		t.Fatalf("zero limit disables limiting")
	}
}
