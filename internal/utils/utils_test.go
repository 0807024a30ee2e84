package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{name: "returns empty when limit non-positive", input: "hello world", limit: 0, expect: ""},
		{name: "shorter than limit", input: "hello", limit: 10, expect: "hello"},
		{name: "truncates and adds ellipsis", input: "hello world", limit: 5, expect: "hello..."},
		{name: "counts runes not bytes", input: "привет мир", limit: 6, expect: "привет..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestWaitFor(t *testing.T) {
	t.Parallel()

	start := time.Now()
	if err := WaitFor(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("returned after %s, before the delay", elapsed)
	}

	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("zero duration must not fail: %v", err)
	}
}

func TestWaitForCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("cancelled wait took %s", elapsed)
	}
}

func TestWaitForStopsOnDeadline(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := WaitFor(ctx, time.Hour); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}
