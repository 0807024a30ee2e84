// Package manual is the channel for operator-managed test accounts. Messages
// are recorded in an outbox instead of being delivered.
package manual

import (
	"context"
	"errors"
	"sync"

	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/provider"
	"go.uber.org/zap"
)

const name = "manual"

type Outbox struct {
	Recipient string
	ChatID    string
	Text      string
}

type Channel struct {
	mu     sync.Mutex
	outbox []Outbox
	logger *zap.Logger
}

func New(logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{logger: logger.With(zap.String("provider", name))}
}

func (c *Channel) Name() string {
	return name
}

func (c *Channel) SearchProfiles(context.Context, string, int) ([]model.Candidate, error) {
	return nil, nil
}

func (c *Channel) EnrichProfile(_ context.Context, profile model.Candidate) (model.Candidate, error) {
	return profile, nil
}

func (c *Channel) SendMessage(_ context.Context, profile model.Candidate, text string) (model.Delivery, error) {
	recipient := profile.ProviderID()
	if recipient == "" {
		err := errors.New("manual account has no identifier")
		return model.Delivery{Provider: name, Error: err.Error()}, err
	}

	chatID := "manual-chat-" + recipient
	c.mu.Lock()
	c.outbox = append(c.outbox, Outbox{Recipient: recipient, ChatID: chatID, Text: text})
	c.mu.Unlock()

	c.logger.Info("manual message queued", zap.String("recipient", recipient), zap.String("chat_id", chatID))
	return model.Delivery{Provider: name, Sent: true, ChatID: chatID}, nil
}

func (c *Channel) SendConnectionRequest(context.Context, model.Candidate, string) (model.ConnectRequest, error) {
	return model.ConnectRequest{Provider: name, AlreadyConnected: true}, nil
}

func (c *Channel) CheckConnectionStatus(context.Context, model.Candidate) (provider.Connection, error) {
	return provider.Connection{Connected: true, Status: "manual"}, nil
}

// Outbox returns everything "sent" so far.
func (c *Channel) Outbox() []Outbox {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Outbox(nil), c.outbox...)
}

var _ provider.Channel = (*Channel)(nil)
