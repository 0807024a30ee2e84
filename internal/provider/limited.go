package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/tener-recruiter/internal/model"
)

// Limiter is a fixed-window counter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Limited caps outbound sends and connection requests of a channel.
// Reads are not limited.
type Limited struct {
	Channel
	limiter Limiter
	key     string
	limit   int
	window  time.Duration
	logger  *zap.Logger
}

func NewLimited(ch Channel, limiter Limiter, account string, limit int, window time.Duration, logger *zap.Logger) *Limited {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limited{
		Channel: ch,
		limiter: limiter,
		key:     fmt.Sprintf("outbound:%s:%s", ch.Name(), account),
		limit:   limit,
		window:  window,
		logger:  logger,
	}
}

func (l *Limited) SendMessage(ctx context.Context, profile model.Candidate, text string) (model.Delivery, error) {
	if err := l.allow(ctx); err != nil {
		return model.Delivery{Provider: l.Name(), Error: err.Error()}, err
	}
	return l.Channel.SendMessage(ctx, profile, text)
}

func (l *Limited) SendConnectionRequest(ctx context.Context, profile model.Candidate, note string) (model.ConnectRequest, error) {
	if err := l.allow(ctx); err != nil {
		return model.ConnectRequest{Provider: l.Name(), Error: err.Error()}, err
	}
	return l.Channel.SendConnectionRequest(ctx, profile, note)
}

// FetchChatMessages keeps inbound polling available through the wrapper.
func (l *Limited) FetchChatMessages(ctx context.Context, chatID string, limit int) ([]ChatMessage, error) {
	fetcher, ok := l.Channel.(InboundFetcher)
	if !ok {
		return nil, fmt.Errorf("channel %s cannot fetch chat messages", l.Name())
	}
	return fetcher.FetchChatMessages(ctx, chatID, limit)
}

func (l *Limited) allow(ctx context.Context) error {
	if l.limiter == nil || l.limit <= 0 {
		return nil
	}
	ok, err := l.limiter.Allow(ctx, l.key, l.limit, l.window)
	if err != nil {
		// An unavailable limiter must not stop outreach.
		l.logger.Warn("rate limiter unavailable", zap.String("key", l.key), zap.Error(err))
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}
