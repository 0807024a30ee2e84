// Package mock is a dataset-backed channel for local runs and tests.
//
// Profiles with "requires_connection": true refuse messages until their
// connection is accepted. Chat ids are derived from the recipient, so the
// same person keeps one chat across jobs like on the real platform.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/provider"
)

const name = "mock"

type SentMessage struct {
	Recipient string
	ChatID    string
	Text      string
}

type Channel struct {
	mu          sync.Mutex
	profiles    []model.Candidate
	connected   map[string]bool
	invited     map[string]bool
	failures    map[string]error
	sent        []SentMessage
	chats       map[string][]provider.ChatMessage
	nextMessage int
}

func New(profiles []model.Candidate) *Channel {
	return &Channel{
		profiles:  profiles,
		connected: map[string]bool{},
		invited:   map[string]bool{},
		failures:  map[string]error{},
		chats:     map[string][]provider.ChatMessage{},
	}
}

// Load reads a JSON array of profiles.
func Load(path string) (*Channel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mock dataset %q: %w", path, err)
	}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding mock dataset %q: %w", path, err)
	}

	profiles := make([]model.Candidate, 0, len(raw))
	for _, item := range raw {
		encoded, _ := json.Marshal(item)
		var c model.Candidate
		if err := json.Unmarshal(encoded, &c); err != nil {
			return nil, fmt.Errorf("decoding mock profile: %w", err)
		}
		c.Raw = item
		profiles = append(profiles, c)
	}
	return New(profiles), nil
}

func (c *Channel) Name() string {
	return name
}

func (c *Channel) SearchProfiles(_ context.Context, query string, limit int) ([]model.Candidate, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}

	type scored struct {
		score   float64
		profile model.Candidate
	}
	ranked := make([]scored, 0, len(c.profiles))
	for _, p := range c.profiles {
		text := strings.ToLower(strings.Join([]string{p.Headline, strings.Join(p.Skills, " "), p.Location}, " "))
		if s := matchScore(strings.ToLower(query), text); s > 0 {
			ranked = append(ranked, scored{score: s, profile: p})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]model.Candidate, 0, limit)
	if len(ranked) == 0 {
		out = append(out, c.profiles...)
	} else {
		for _, r := range ranked {
			out = append(out, r.profile)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Channel) EnrichProfile(_ context.Context, profile model.Candidate) (model.Candidate, error) {
	if profile.Raw == nil {
		profile.Raw = map[string]any{}
	}
	if _, ok := profile.Raw["provider_id"]; !ok {
		profile.Raw["provider_id"] = profile.LinkedInID
	}
	return profile, nil
}

func (c *Channel) SendMessage(_ context.Context, profile model.Candidate, text string) (model.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recipient := profile.ProviderID()
	delivery := model.Delivery{Provider: name}

	if err := c.failures[recipient]; err != nil {
		delivery.Error = err.Error()
		return delivery, err
	}
	if requiresConnection(profile) && !c.connected[recipient] {
		delivery.Error = provider.ErrNotConnected.Error()
		return delivery, provider.ErrNotConnected
	}

	c.nextMessage++
	chatID := ChatID(recipient)
	msgID := fmt.Sprintf("mock-msg-%d", c.nextMessage)
	c.sent = append(c.sent, SentMessage{Recipient: recipient, ChatID: chatID, Text: text})
	own := true
	c.chats[chatID] = append(c.chats[chatID], provider.ChatMessage{ID: msgID, ChatID: chatID, Text: text, IsSender: &own})

	delivery.Sent = true
	delivery.ChatID = chatID
	delivery.MessageID = msgID
	return delivery, nil
}

func (c *Channel) SendConnectionRequest(_ context.Context, profile model.Candidate, _ string) (model.ConnectRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recipient := profile.ProviderID()
	if c.connected[recipient] {
		return model.ConnectRequest{Provider: name, AlreadyConnected: true}, nil
	}
	c.invited[recipient] = true
	return model.ConnectRequest{Provider: name, Sent: true, RequestID: "mock-invite-" + recipient}, nil
}

func (c *Channel) CheckConnectionStatus(_ context.Context, profile model.Candidate) (provider.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recipient := profile.ProviderID()
	if err := c.failures[recipient]; err != nil {
		return provider.Connection{}, err
	}
	connected := c.connected[recipient] || !requiresConnection(profile)
	status := "pending"
	if connected {
		status = "connected"
	}
	return provider.Connection{Connected: connected, Status: status}, nil
}

func (c *Channel) FetchChatMessages(_ context.Context, chatID string, limit int) ([]provider.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.chats[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]provider.ChatMessage(nil), msgs...), nil
}

// Accept marks the recipient as connected.
func (c *Channel) Accept(recipient string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected[recipient] = true
}

// Fail makes every call for recipient return err until cleared with nil.
func (c *Channel) Fail(recipient string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, recipient)
		return
	}
	c.failures[recipient] = err
}

// Reply appends a candidate message to the recipient's chat.
func (c *Channel) Reply(recipient, text string) provider.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextMessage++
	chatID := ChatID(recipient)
	own := false
	msg := provider.ChatMessage{
		ID:       fmt.Sprintf("mock-msg-%d", c.nextMessage),
		ChatID:   chatID,
		SenderID: recipient,
		Text:     text,
		IsSender: &own,
	}
	c.chats[chatID] = append(c.chats[chatID], msg)
	return msg
}

func (c *Channel) Invited(recipient string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invited[recipient]
}

func (c *Channel) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentMessage(nil), c.sent...)
}

func ChatID(recipient string) string {
	return "mock-chat-" + recipient
}

func requiresConnection(profile model.Candidate) bool {
	v, _ := profile.Raw["requires_connection"].(bool)
	return v
}

func matchScore(query, text string) float64 {
	if strings.TrimSpace(query) == "" {
		return 1
	}
	var tokens []string
	for _, tok := range strings.Fields(query) {
		if len([]rune(tok)) > 2 {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return 1
	}
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

var (
	_ provider.Channel        = (*Channel)(nil)
	_ provider.InboundFetcher = (*Channel)(nil)
)
