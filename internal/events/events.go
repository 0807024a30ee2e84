// Package events publishes workflow changes and deduplicates inbound events.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "tener.events"

// Event types.
const (
	TypeMatchStatusChanged = "match_status_changed"
	TypeOutreachResult     = "outreach_result"
	TypeInboundProcessed   = "inbound_processed"
	TypeChatRebound        = "chat_rebound"
	TypeInterviewSynced    = "interview_synced"
)

type Event struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	JobID          int64          `json:"job_id,omitempty"`
	CandidateID    int64          `json:"candidate_id,omitempty"`
	ConversationID int64          `json:"conversation_id,omitempty"`
	From           string         `json:"from,omitempty"`
	To             string         `json:"to,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	At             time.Time      `json:"at"`
}

// Publisher delivers events. Publishing never fails the caller.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

func stamp(ev Event) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return ev
}

type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisPublisher(rdb *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{rdb: rdb, channel: channel, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) {
	ev = stamp(ev)
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("marshal event failed", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("publish event failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, stamp(ev))
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(typ string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
