// Package store persists the workflow records.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/notes"
	"github.com/spigell/tener-recruiter/internal/preresume"
)

// ErrNotFound is returned when the record does not exist.
var ErrNotFound = errors.New("not found")

type ConversationFilter struct {
	JobID       int64
	CandidateID int64
	Status      model.ConversationStatus
	Channel     model.Channel
}

// Store is the persistence gateway. Every method is one short transaction.
type Store interface {
	InsertJob(ctx context.Context, job model.Job) (model.Job, error)
	GetJob(ctx context.Context, id int64) (model.Job, error)
	ListJobs(ctx context.Context) ([]model.Job, error)

	// UpsertCandidate creates the candidate or updates the one with the same
	// LinkedIn id.
	UpsertCandidate(ctx context.Context, c model.Candidate) (model.Candidate, error)
	GetCandidate(ctx context.Context, id int64) (model.Candidate, error)
	GetCandidateByLinkedInID(ctx context.Context, linkedInID string) (model.Candidate, error)
	// FindCandidateByProviderID matches the LinkedIn id or any provider id
	// stored in the raw payload.
	FindCandidateByProviderID(ctx context.Context, providerID string) (model.Candidate, error)

	// CreateCandidateMatch upserts the (job, candidate) match. An existing
	// status is only replaced while it is still a pre-outreach one.
	CreateCandidateMatch(ctx context.Context, m model.Match) (model.Match, error)
	GetCandidateMatch(ctx context.Context, jobID, candidateID int64) (model.Match, error)
	UpdateCandidateMatchStatus(ctx context.Context, jobID, candidateID int64, status funnel.Status, patch notes.Notes) (model.Match, error)
	UpdateCandidateMatchNotes(ctx context.Context, jobID, candidateID int64, patch notes.Notes) (model.Match, error)
	ListCandidatesForJob(ctx context.Context, jobID int64) ([]model.CandidateMatch, error)

	GetOrCreateConversation(ctx context.Context, jobID, candidateID int64, channel model.Channel) (model.Conversation, bool, error)
	GetConversation(ctx context.Context, id int64) (model.Conversation, error)
	UpdateConversationStatus(ctx context.Context, id int64, status model.ConversationStatus) error
	SetConversationLinkedInAccount(ctx context.Context, id int64, accountID string) error
	// SetConversationExternalChatID moves chatID to the conversation in one
	// atomic update. A chat held by another candidate is never taken.
	SetConversationExternalChatID(ctx context.Context, id int64, chatID string) (model.ChatBinding, error)
	GetConversationByExternalChatID(ctx context.Context, chatID string) (model.Conversation, error)
	GetLatestConversationForCandidate(ctx context.Context, candidateID int64) (model.Conversation, error)
	ListConversations(ctx context.Context, f ConversationFilter) ([]model.Conversation, error)

	// AddMessage appends to the log and touches the conversation.
	AddMessage(ctx context.Context, m model.Message) (model.Message, error)
	ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error)

	GetPreResumeSession(ctx context.Context, sessionID string) (preresume.State, error)
	GetPreResumeSessionByConversation(ctx context.Context, conversationID int64) (preresume.State, error)
	UpsertPreResumeSession(ctx context.Context, s preresume.State) error
	// ListDuePreResumeSessions returns open sessions whose follow-up time has
	// passed. jobID 0 means every job.
	ListDuePreResumeSessions(ctx context.Context, jobID int64, now time.Time, limit int) ([]preresume.State, error)
	InsertPreResumeEvent(ctx context.Context, ev model.PreResumeEvent) error

	// RecordWebhookEvent returns true the first time key is recorded.
	RecordWebhookEvent(ctx context.Context, key, source string, payload map[string]any) (bool, error)

	GetJobAssessment(ctx context.Context, jobID int64) (model.JobAssessment, error)
	SaveJobAssessment(ctx context.Context, a model.JobAssessment) error
}

// replaceableStatus reports whether a re-verification may overwrite status.
func replaceableStatus(s funnel.Status) bool {
	return s == "" || s == funnel.StatusAdded || funnel.IsVerdict(s)
}

// bindChat decides the outcome of moving chatID to conversation conv given
// the current holder. It is shared by both implementations.
func bindChat(conv model.Conversation, holder *model.Conversation, chatID string) model.ChatBinding {
	b := model.ChatBinding{ChatID: chatID, ConversationID: conv.ID}
	switch {
	case holder == nil && conv.ExternalChatID == chatID:
		b.Status = model.BindingUnchanged
	case holder == nil:
		b.Status = model.BindingSet
	case holder.CandidateID != conv.CandidateID:
		b.Status = model.BindingConflict
		b.PreviousConversationID = holder.ID
	default:
		b.Status = model.BindingRebound
		b.PreviousConversationID = holder.ID
	}
	return b
}
