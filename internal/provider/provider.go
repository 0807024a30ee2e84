// Package provider defines the outbound messaging channel used to reach
// candidates and the error taxonomy shared by its implementations.
package provider

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spigell/tener-recruiter/internal/model"
)

const (
	DefaultTimeout = 20 * time.Second
	MinTimeout     = 3 * time.Second
)

var (
	// ErrNotConnected is returned when the recipient must accept a
	// connection request before a message can be delivered.
	ErrNotConnected = errors.New("no_connection_with_recipient")
	// ErrRateLimited marks a send blocked by the outbound limiter. It is
	// transient: the next pass retries.
	ErrRateLimited = errors.New("outbound rate limit reached")
)

var connectionRequiredNeedles = []string{
	"no_connection_with_recipient",
	"recipient cannot be reached",
	"not to be first degree",
	"not first degree",
	"first degree connection",
}

var alreadyConnectedNeedles = []string{"already connected", "already_connected", "already_invited_recently"}

// Channel is a messaging platform the workflow talks to.
type Channel interface {
	Name() string
	SearchProfiles(ctx context.Context, query string, limit int) ([]model.Candidate, error)
	EnrichProfile(ctx context.Context, profile model.Candidate) (model.Candidate, error)
	// SendMessage delivers text. On failure the returned Delivery carries the
	// raw provider error text and err is non-nil.
	SendMessage(ctx context.Context, profile model.Candidate, text string) (model.Delivery, error)
	SendConnectionRequest(ctx context.Context, profile model.Candidate, note string) (model.ConnectRequest, error)
	CheckConnectionStatus(ctx context.Context, profile model.Candidate) (Connection, error)
}

type Connection struct {
	Connected bool   `json:"connected"`
	Status    string `json:"status,omitempty"`
}

// InboundFetcher is implemented by channels that can list chat history, so
// replies can be polled when webhooks are missed.
type InboundFetcher interface {
	FetchChatMessages(ctx context.Context, chatID string, limit int) ([]ChatMessage, error)
}

type ChatMessage struct {
	ID        string
	ChatID    string
	SenderID  string
	Text      string
	Direction string
	// IsSender is set when the provider flags messages written by our account.
	IsSender    *bool
	Attachments []Attachment
	CreatedAt   string
}

type Attachment struct {
	Name string
	URL  string
}

// IsConnectionRequired reports whether a failed delivery needs a connection
// request first.
func IsConnectionRequired(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConnected) {
		return true
	}
	return ContainsConnectionRequired(err.Error())
}

// IsTransient reports whether a failed provider call is worth repeating on a
// later pass: throttling, server errors, timeouts and network failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Transient() bool }
	if errors.As(err, &te) {
		return te.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// ContainsConnectionRequired checks raw provider error text.
func ContainsConnectionRequired(text string) bool {
	return containsAny(text, connectionRequiredNeedles)
}

// IsAlreadyConnected reports whether a connection request was refused
// because the pair is already connected.
func IsAlreadyConnected(text string) bool {
	return containsAny(text, alreadyConnectedNeedles)
}

// ClampTimeout applies the default and the floor to a provider timeout.
func ClampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	if d < MinTimeout {
		return MinTimeout
	}
	return d
}

func containsAny(text string, needles []string) bool {
	lowered := strings.ToLower(text)
	for _, n := range needles {
		if strings.Contains(lowered, n) {
			return true
		}
	}
	return false
}
