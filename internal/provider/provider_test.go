package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/spigell/tener-recruiter/internal/model"
)

func TestIsConnectionRequired(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{err: nil, want: false},
		{err: ErrNotConnected, want: true},
		{err: fmt.Errorf("send: %w", ErrNotConnected), want: true},
		{err: errors.New("Recipient cannot be reached"), want: true},
		{err: errors.New("user appears not to be first degree"), want: true},
		{err: errors.New("timeout"), want: false},
	}
	for _, tc := range cases {
		if got := IsConnectionRequired(tc.err); got != tc.want {
			t.Fatalf("IsConnectionRequired(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

type statusError struct{ retry bool }

func (e statusError) Error() string   { return "provider status error" }
func (e statusError) Transient() bool { return e.retry }

func TestIsTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limited", err: fmt.Errorf("send: %w", ErrRateLimited), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "retryable status", err: fmt.Errorf("send: %w", statusError{retry: true}), want: true},
		{name: "rejected status", err: statusError{retry: false}, want: false},
		{name: "url error", err: &url.Error{Op: "Post", URL: "https://api.example", Err: errors.New("connection reset")}, want: true},
		{name: "net error", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, want: true},
		{name: "plain", err: errors.New("recipient has blocked messages"), want: false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Fatalf("%s: IsTransient(%v) = %v, want %v", tc.name, tc.err, got, tc.want)
		}
	}
}

func TestClampTimeout(t *testing.T) {
	t.Parallel()

	if got := ClampTimeout(0); got != DefaultTimeout {
		t.Fatalf("default: %v", got)
	}
	if got := ClampTimeout(time.Second); got != MinTimeout {
		t.Fatalf("floor: %v", got)
	}
	if got := ClampTimeout(time.Minute); got != time.Minute {
		t.Fatalf("passthrough: %v", got)
	}
}

type countingChannel struct {
	Channel
	sends int
}

func (c *countingChannel) Name() string { return "counting" }

func (c *countingChannel) SendMessage(context.Context, model.Candidate, string) (model.Delivery, error) {
	c.sends++
	return model.Delivery{Sent: true}, nil
}

type fixedLimiter struct {
	allowed int
	err     error
}

func (l *fixedLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.allowed <= 0 {
		return false, nil
	}
	l.allowed--
	return true, nil
}

func TestLimited(t *testing.T) {
	t.Parallel()

	inner := &countingChannel{}
	limited := NewLimited(inner, &fixedLimiter{allowed: 1}, "acc", 10, time.Hour, nil)

	if _, err := limited.SendMessage(context.Background(), model.Candidate{}, "a"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	delivery, err := limited.SendMessage(context.Background(), model.Candidate{}, "b")
	if !errors.Is(err, ErrRateLimited) || delivery.Sent {
		t.Fatalf("expected rate limit, got %+v %v", delivery, err)
	}
	if inner.sends != 1 {
		t.Fatalf("inner channel called %d times", inner.sends)
	}

	open := NewLimited(inner, &fixedLimiter{err: errors.New("redis down")}, "acc", 10, time.Hour, nil)
	if _, err := open.SendMessage(context.Background(), model.Candidate{}, "c"); err != nil {
		t.Fatalf("limiter failure must not block sends: %v", err)
	}
}
