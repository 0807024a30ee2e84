// Package model holds the persisted records of the recruiting workflow.
package model

import (
	"strings"
	"time"

	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/notes"
)

type Channel string

const (
	ChannelLinkedIn Channel = "linkedin"
	ChannelManual   Channel = "manual"
)

type ConversationStatus string

const (
	ConversationActive            ConversationStatus = "active"
	ConversationWaitingConnection ConversationStatus = "waiting_connection"
	ConversationClosed            ConversationStatus = "closed"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type Job struct {
	ID                 int64     `json:"id"`
	Title              string    `json:"title" validate:"required"`
	JDText             string    `json:"jd_text" validate:"required"`
	Location           string    `json:"location,omitempty"`
	PreferredLanguages []string  `json:"preferred_languages,omitempty"`
	Seniority          string    `json:"seniority,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Candidate is a sourced person. LinkedInID is the unique identity key.
type Candidate struct {
	ID              int64          `json:"id"`
	LinkedInID      string         `json:"linkedin_id"`
	FullName        string         `json:"full_name"`
	Headline        string         `json:"headline,omitempty"`
	Location        string         `json:"location,omitempty"`
	Languages       []string       `json:"languages,omitempty"`
	Skills          []string       `json:"skills,omitempty"`
	YearsExperience float64        `json:"years_experience,omitempty"`
	Raw             map[string]any `json:"raw,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ProviderID returns the identifier the messaging provider knows this person by.
func (c *Candidate) ProviderID() string {
	for _, key := range []string{"attendee_provider_id", "provider_id", "unipile_profile_id"} {
		if v, ok := c.Raw[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(c.LinkedInID)
}

// FirstName is used to address the candidate in templates.
func (c *Candidate) FirstName() string {
	fields := strings.Fields(c.FullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Match is the (job, candidate) pairing and its business status.
type Match struct {
	JobID       int64         `json:"job_id"`
	CandidateID int64         `json:"candidate_id"`
	Score       float64       `json:"score"`
	Status      funnel.Status `json:"status"`
	Notes       notes.Notes   `json:"verification_notes"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// CandidateMatch is a candidate listed for a job together with its match.
type CandidateMatch struct {
	Candidate Candidate `json:"candidate"`
	Match     Match     `json:"match"`
}

type Conversation struct {
	ID                int64              `json:"id"`
	JobID             int64              `json:"job_id"`
	CandidateID       int64              `json:"candidate_id"`
	Channel           Channel            `json:"channel"`
	ExternalChatID    string             `json:"external_chat_id,omitempty"`
	LinkedInAccountID string             `json:"linkedin_account_id,omitempty"`
	Status            ConversationStatus `json:"status"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Message is an entry in the append-only conversation log.
type Message struct {
	ID             int64       `json:"id"`
	ConversationID int64       `json:"conversation_id"`
	Direction      Direction   `json:"direction"`
	Content        string      `json:"content"`
	Language       string      `json:"candidate_language,omitempty"`
	Meta           MessageMeta `json:"meta"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Message types stored in MessageMeta.Type.
const (
	MessageCandidate                 = "candidate_message"
	MessageOutreach                  = "outreach"
	MessageOutreachPendingConnection = "outreach_pending_connection"
	MessageOutreachAfterConnection   = "outreach_after_connection"
	MessagePreResumeReply            = "pre_resume_auto_reply"
	MessagePreResumeFollowup         = "pre_resume_followup"
	MessageFAQReply                  = "faq_auto_reply"
	MessageInterviewInvite           = "interview_invite"
	MessageInterviewFollowup         = "interview_followup"
)

// Delivery statuses stored in MessageMeta.DeliveryStatus.
const (
	DeliverySent              = "sent"
	DeliveryPendingConnection = "pending_connection"
	DeliveryFailed            = "failed"
)

type MessageMeta struct {
	Type              string          `json:"type"`
	Auto              bool            `json:"auto,omitempty"`
	Intent            string          `json:"intent,omitempty"`
	SessionID         string          `json:"session_id,omitempty"`
	Delivery          *Delivery       `json:"delivery,omitempty"`
	DeliveryStatus    string          `json:"delivery_status,omitempty"`
	ConnectRequest    *ConnectRequest `json:"connect_request,omitempty"`
	PendingDelivery   bool            `json:"pending_delivery,omitempty"`
	RequestResume     bool            `json:"request_resume,omitempty"`
	ExternalChatID    string          `json:"external_chat_id,omitempty"`
	ChatBinding       *ChatBinding    `json:"chat_binding,omitempty"`
	ProviderMessageID string          `json:"provider_message_id,omitempty"`
}

// Delivery is the provider's answer to a send attempt.
type Delivery struct {
	Provider  string `json:"provider,omitempty"`
	Sent      bool   `json:"sent"`
	ChatID    string `json:"chat_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ConnectRequest is the provider's answer to a connection request.
type ConnectRequest struct {
	Provider         string `json:"provider,omitempty"`
	Sent             bool   `json:"sent"`
	RequestID        string `json:"request_id,omitempty"`
	AlreadyConnected bool   `json:"already_connected,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Chat binding outcomes.
const (
	BindingSet            = "set"
	BindingUnchanged      = "unchanged"
	BindingRebound        = "rebound_same_candidate"
	BindingConflict       = "conflict_other_candidate"
	BindingEmptyChatID    = "empty_chat_id"
	BindingNoConversation = "conversation_not_found"
)

// ChatBinding reports how a provider chat id was attached to a conversation.
type ChatBinding struct {
	Status                 string `json:"status"`
	ChatID                 string `json:"chat_id,omitempty"`
	ConversationID         int64  `json:"conversation_id,omitempty"`
	PreviousConversationID int64  `json:"previous_conversation_id,omitempty"`
}

// Bound reports whether the conversation now owns the chat id.
func (b ChatBinding) Bound() bool {
	return b.Status == BindingSet || b.Status == BindingUnchanged || b.Status == BindingRebound
}

// JobAssessment is the interview assessment prepared once per job description.
type JobAssessment struct {
	JobID        int64     `json:"job_id"`
	AssessmentID string    `json:"assessment_id"`
	Name         string    `json:"name,omitempty"`
	JDHash       string    `json:"jd_hash"`
	PreparedAt   time.Time `json:"prepared_at"`
}

// PreResumeEvent is an audit record of one pre-resume exchange.
type PreResumeEvent struct {
	ID             int64          `json:"id"`
	SessionID      string         `json:"session_id"`
	ConversationID int64          `json:"conversation_id"`
	EventType      string         `json:"event_type"`
	Intent         string         `json:"intent,omitempty"`
	InboundText    string         `json:"inbound_text,omitempty"`
	OutboundText   string         `json:"outbound_text,omitempty"`
	StateStatus    string         `json:"state_status,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}
