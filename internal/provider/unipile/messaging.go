package unipile

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/provider"
	"go.uber.org/zap"
)

const (
	apiChatsPath  = "/api/v1/chats"
	apiInvitePath = "/api/v1/users/invite"
	// LinkedIn limits connection notes to 300 characters.
	maxInviteNote = 300
)

type sendResponse struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

type inviteResponse struct {
	InvitationID string `json:"invitation_id"`
}

type messagesResponse struct {
	Items []map[string]any `json:"items"`
}

type messageItem struct {
	ID          string           `mapstructure:"id"`
	ChatID      string           `mapstructure:"chat_id"`
	SenderID    string           `mapstructure:"sender_id"`
	Text        string           `mapstructure:"text"`
	Direction   string           `mapstructure:"direction"`
	IsSender    *bool            `mapstructure:"is_sender"`
	FromMe      *bool            `mapstructure:"from_me"`
	Timestamp   string           `mapstructure:"timestamp"`
	CreatedAt   string           `mapstructure:"created_at"`
	Attachments []map[string]any `mapstructure:"attachments"`
}

func (c *Client) SendMessage(ctx context.Context, profile model.Candidate, text string) (model.Delivery, error) {
	delivery := model.Delivery{Provider: name}

	recipient := profile.ProviderID()
	if recipient == "" {
		err := errors.New("recipient has no provider id")
		delivery.Error = err.Error()
		return delivery, err
	}

	payload := map[string]any{
		"account_id":    c.accountID,
		"attendees_ids": []string{recipient},
		"text":          text,
	}

	var resp sendResponse
	if err := c.postJSON(ctx, apiChatsPath, payload, &resp); err != nil {
		delivery.Error = err.Error()
		if provider.IsConnectionRequired(err) {
			return delivery, fmt.Errorf("%w: %s", provider.ErrNotConnected, err.Error())
		}
		return delivery, err
	}

	delivery.Sent = true
	delivery.ChatID = resp.ChatID
	delivery.MessageID = resp.MessageID
	return delivery, nil
}

func (c *Client) SendConnectionRequest(ctx context.Context, profile model.Candidate, note string) (model.ConnectRequest, error) {
	out := model.ConnectRequest{Provider: name}

	recipient := profile.ProviderID()
	if recipient == "" {
		err := errors.New("recipient has no provider id")
		out.Error = err.Error()
		return out, err
	}

	payload := map[string]any{
		"account_id":  c.accountID,
		"provider_id": recipient,
	}
	if note = strings.TrimSpace(note); note != "" {
		runes := []rune(note)
		if len(runes) > maxInviteNote {
			note = string(runes[:maxInviteNote])
		}
		payload["message"] = note
	}

	var resp inviteResponse
	if err := c.postJSON(ctx, apiInvitePath, payload, &resp); err != nil {
		if provider.IsAlreadyConnected(err.Error()) {
			out.AlreadyConnected = true
			return out, nil
		}
		out.Error = err.Error()
		return out, err
	}

	out.Sent = true
	out.RequestID = resp.InvitationID
	return out, nil
}

func (c *Client) CheckConnectionStatus(ctx context.Context, profile model.Candidate) (provider.Connection, error) {
	id := profile.ProviderID()
	if id == "" {
		return provider.Connection{}, errors.New("profile has no provider id")
	}

	raw, err := c.getUser(ctx, id)
	if err != nil {
		return provider.Connection{}, fmt.Errorf("check connection %s: %w", id, err)
	}

	distance, _ := raw["network_distance"].(string)
	relationship, _ := raw["is_relationship"].(bool)
	connected := relationship || isFirstDegree(distance)

	c.logger.Debug("connection status", zap.String("provider_id", id), zap.String("network_distance", distance), zap.Bool("connected", connected))
	return provider.Connection{Connected: connected, Status: distance}, nil
}

func (c *Client) FetchChatMessages(ctx context.Context, chatID string, limit int) ([]provider.ChatMessage, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, errors.New("chat id is required")
	}
	if limit <= 0 {
		limit = 50
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var resp messagesResponse
	if err := c.getJSON(ctx, apiChatsPath+"/"+url.PathEscape(chatID)+"/messages", q, &resp); err != nil {
		return nil, fmt.Errorf("fetch chat %s messages: %w", chatID, err)
	}

	out := make([]provider.ChatMessage, 0, len(resp.Items))
	for _, raw := range resp.Items {
		var item messageItem
		if err := mapstructure.WeakDecode(raw, &item); err != nil {
			c.logger.Warn("skip undecodable message", zap.String("chat_id", chatID), zap.Error(err))
			continue
		}

		msg := provider.ChatMessage{
			ID:        item.ID,
			ChatID:    firstNonEmpty(item.ChatID, chatID),
			SenderID:  item.SenderID,
			Text:      item.Text,
			Direction: item.Direction,
			IsSender:  item.IsSender,
			CreatedAt: firstNonEmpty(item.CreatedAt, item.Timestamp),
		}
		if msg.IsSender == nil {
			msg.IsSender = item.FromMe
		}
		for _, a := range item.Attachments {
			att := provider.Attachment{}
			att.Name, _ = a["name"].(string)
			if att.Name == "" {
				att.Name, _ = a["file_name"].(string)
			}
			att.URL, _ = a["url"].(string)
			msg.Attachments = append(msg.Attachments, att)
		}
		out = append(out, msg)
	}
	return out, nil
}

func isFirstDegree(distance string) bool {
	switch strings.ToUpper(strings.TrimSpace(distance)) {
	case "FIRST_DEGREE", "DISTANCE_1", "1":
		return true
	}
	return false
}
