// Package workflow drives candidates from sourcing to the interview: it
// verifies profiles, delivers outreach, routes replies into the pre-resume
// conversation and keeps interview progress in sync.
//
// Every operation works on the Store and reports counts. A failure of one
// candidate is recorded in the result and never stops the batch.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spigell/tener-recruiter/internal/ai"
	"github.com/spigell/tener-recruiter/internal/events"
	"github.com/spigell/tener-recruiter/internal/filtering"
	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/interview"
	"github.com/spigell/tener-recruiter/internal/logger"
	"github.com/spigell/tener-recruiter/internal/matching"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/notes"
	"github.com/spigell/tener-recruiter/internal/preresume"
	"github.com/spigell/tener-recruiter/internal/provider"
	"github.com/spigell/tener-recruiter/internal/store"
)

// ErrInvalidArgument marks calls that can never succeed as made.
var ErrInvalidArgument = errors.New("invalid argument")

// ValidationError reports a malformed payload received from outside.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Msg
}

var validate = validator.New()

func validatePayload(v any) error {
	if err := validate.Struct(v); err != nil {
		return &ValidationError{Msg: err.Error()}
	}
	return nil
}

// InterviewService is the remote interview module.
type InterviewService interface {
	StartSession(ctx context.Context, req interview.StartRequest) (interview.Session, error)
	GetSession(ctx context.Context, sessionID string) (interview.Session, error)
	RefreshSession(ctx context.Context, sessionID string, force bool) (interview.Session, error)
	ListSessions(ctx context.Context, jobID int64, status string, limit int) ([]interview.Session, error)
	GetScorecard(ctx context.Context, sessionID string) (interview.Scorecard, error)
}

// AssessmentEnsurer prepares the job's interview assessment when needed.
type AssessmentEnsurer interface {
	Ensure(ctx context.Context, job model.Job) (model.JobAssessment, bool, error)
}

// Deduper records inbound events and reports whether they are new.
type Deduper interface {
	RecordWebhookEvent(ctx context.Context, key, source string, payload map[string]any) (bool, error)
}

// Deps are the collaborators of a Workflow. Store, Channel and PreResume are
// required; the rest are optional.
type Deps struct {
	Store   store.Store
	Channel provider.Channel
	// Manual delivers to conversations on the manual channel.
	Manual      provider.Channel
	Verifier    matching.Verifier
	PreResume   *preresume.Service
	Replier     ai.Replier
	Interview   InterviewService
	Assessments AssessmentEnsurer
	// Deduper defaults to the Store.
	Deduper   Deduper
	Publisher events.Publisher
	Logger    *zap.Logger
	Now       func() time.Time
}

// InterviewPolicy controls invitations and their reminders.
type InterviewPolicy struct {
	TTLHours       int
	MaxFollowups   int
	FollowupDelays []time.Duration
}

// Policy is the per-deployment behaviour of the workflow.
type Policy struct {
	// ContactAll turns rejections into CV requests and makes needs_resume
	// candidates outreach targets.
	ContactAll bool
	// RequireResume starts a pre-resume session for every outreach.
	RequireResume bool
	ForcedTest    filtering.ForcedTestConfig
	ForcedScore   float64
	ExcludeFile   string
	SearchLimit   int
	// SkipFilters names outreach filters turned off for this deployment.
	// The eligible status filter cannot be skipped.
	SkipFilters []string
	// AccountID is the messaging account conversations are sent from.
	AccountID string
	Interview InterviewPolicy
}

const (
	defaultSearchLimit     = 30
	maxSearchLimit         = 200
	defaultForcedScore     = 85
	defaultInterviewTTL    = 72
	defaultInterviewFollow = 2
	maxBatchLimit          = 500
	maxPerChatLimit        = 50
	enrichConcurrency      = 4
)

var defaultInterviewDelays = []time.Duration{24 * time.Hour, 48 * time.Hour}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		ForcedScore: defaultForcedScore,
		SearchLimit: defaultSearchLimit,
		Interview: InterviewPolicy{
			TTLHours:       defaultInterviewTTL,
			MaxFollowups:   defaultInterviewFollow,
			FollowupDelays: defaultInterviewDelays,
		},
	}
}

type Workflow struct {
	store       store.Store
	channel     provider.Channel
	manual      provider.Channel
	verifier    matching.Verifier
	preResume   *preresume.Service
	replier     ai.Replier
	interview   InterviewService
	assessments AssessmentEnsurer
	deduper     Deduper
	publisher   events.Publisher
	logger      *zap.Logger
	now         func() time.Time
	policy      Policy
}

func New(deps Deps, policy Policy) (*Workflow, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required: %w", ErrInvalidArgument)
	}
	if deps.Channel == nil {
		return nil, fmt.Errorf("channel is required: %w", ErrInvalidArgument)
	}
	if deps.PreResume == nil {
		return nil, fmt.Errorf("pre-resume service is required: %w", ErrInvalidArgument)
	}

	if deps.Verifier == nil {
		deps.Verifier = matching.NewRules(0)
	}
	if deps.Deduper == nil {
		deps.Deduper = deps.Store
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	if policy.SearchLimit <= 0 {
		policy.SearchLimit = defaultSearchLimit
	}
	if policy.ForcedScore <= 0 {
		policy.ForcedScore = defaultForcedScore
	}
	if policy.Interview.TTLHours <= 0 {
		policy.Interview.TTLHours = defaultInterviewTTL
	}
	if policy.Interview.MaxFollowups <= 0 {
		policy.Interview.MaxFollowups = defaultInterviewFollow
	}
	if len(policy.Interview.FollowupDelays) == 0 {
		policy.Interview.FollowupDelays = defaultInterviewDelays
	}

	return &Workflow{
		store:       deps.Store,
		channel:     deps.Channel,
		manual:      deps.Manual,
		verifier:    deps.Verifier,
		preResume:   deps.PreResume,
		replier:     deps.Replier,
		interview:   deps.Interview,
		assessments: deps.Assessments,
		deduper:     deps.Deduper,
		publisher:   deps.Publisher,
		logger:      logger.WithFields(deps.Logger),
		now:         deps.Now,
		policy:      policy,
	}, nil
}

// Policy returns the effective policy.
func (w *Workflow) Policy() Policy {
	return w.policy
}

// channelFor picks the channel a conversation is delivered through.
func (w *Workflow) channelFor(conv model.Conversation) (provider.Channel, error) {
	if conv.Channel == model.ChannelManual {
		if w.manual == nil {
			return nil, fmt.Errorf("conversation %d is on the manual channel but none is configured", conv.ID)
		}
		return w.manual, nil
	}
	return w.channel, nil
}

func (w *Workflow) convLogger(conv model.Conversation) *zap.Logger {
	return logger.WithFields(w.logger, logger.ConversationFields(conv.JobID, conv.CandidateID, conv.ID, conv.ExternalChatID)...)
}

// advance moves the match to status when the state machine allows it. The
// notes patch is stored either way. It reports whether the status changed.
func (w *Workflow) advance(ctx context.Context, match model.Match, to funnel.Status, patch notes.Notes) (model.Match, bool, error) {
	from := match.Status
	if !funnel.IsTransitionAllowed(from, to) {
		if patch.IsZero() {
			return match, false, nil
		}
		updated, err := w.store.UpdateCandidateMatchNotes(ctx, match.JobID, match.CandidateID, patch)
		if err != nil {
			return match, false, fmt.Errorf("updating match notes: %w", err)
		}
		return updated, false, nil
	}

	updated, err := w.store.UpdateCandidateMatchStatus(ctx, match.JobID, match.CandidateID, to, patch)
	if err != nil {
		return match, false, fmt.Errorf("updating match status: %w", err)
	}
	w.publisher.Publish(ctx, events.Event{
		Type:        events.TypeMatchStatusChanged,
		JobID:       match.JobID,
		CandidateID: match.CandidateID,
		From:        string(from),
		To:          string(to),
	})
	return updated, true, nil
}

// advanceByIDs loads the match first. A missing match is not an error: manual
// conversations may outlive their match.
func (w *Workflow) advanceByIDs(ctx context.Context, jobID, candidateID int64, to funnel.Status, patch notes.Notes) (model.Match, error) {
	match, err := w.store.GetCandidateMatch(ctx, jobID, candidateID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Match{}, nil
		}
		return model.Match{}, fmt.Errorf("loading match: %w", err)
	}
	match, _, err = w.advance(ctx, match, to, patch)
	return match, err
}

func (w *Workflow) timestamp() *time.Time {
	t := w.now().UTC()
	return &t
}

func clampLimit(limit, def, upper int) int {
	if limit <= 0 {
		return def
	}
	if limit > upper {
		return upper
	}
	return limit
}
