// Package preresume runs the conversation that precedes a candidate's CV:
// intent classification, localized replies and follow-up scheduling.
//
// The Service is pure. It takes a State, returns the next State and the text
// to send; persisting both is up to the caller.
package preresume

import (
	"strings"
	"time"

	"github.com/spigell/tener-recruiter/internal/language"
)

// Event types recorded for every exchange.
const (
	EventSessionStarted  = "session_started"
	EventInbound         = "inbound_processed"
	EventIgnoredTerminal = "ignored_terminal"
	EventFollowupSent    = "followup_sent"
	EventFollowupSkipped = "followup_skipped"
	EventStalled         = "stalled"
	EventUnreachable     = "unreachable"
)

// Follow-up skip reasons.
const (
	ReasonTerminalStatus      = "terminal_status"
	ReasonMaxFollowupsReached = "max_followups_reached"
)

const (
	DefaultMaxFollowups = 3
	minFollowupDelay    = time.Hour
)

var DefaultFollowupDelays = []time.Duration{48 * time.Hour, 72 * time.Hour, 72 * time.Hour}

var interviewMentions = []string{"interview link", "pre-vetting", "pre vetting"}

type Options struct {
	MaxFollowups   int
	FollowupDelays []time.Duration
	Now            func() time.Time
}

type Service struct {
	catalog      *Catalog
	maxFollowups int
	delays       []time.Duration
	now          func() time.Time
}

func NewService(catalog *Catalog, opts Options) *Service {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if opts.MaxFollowups <= 0 {
		opts.MaxFollowups = DefaultMaxFollowups
	}
	if len(opts.FollowupDelays) == 0 {
		opts.FollowupDelays = DefaultFollowupDelays
	}
	delays := make([]time.Duration, len(opts.FollowupDelays))
	for i, d := range opts.FollowupDelays {
		if d < minFollowupDelay {
			d = minFollowupDelay
		}
		delays[i] = d
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		catalog:      catalog,
		maxFollowups: opts.MaxFollowups,
		delays:       delays,
		now:          opts.Now,
	}
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

type StartParams struct {
	ConversationID     int64
	JobID              int64
	CandidateID        int64
	CandidateName      string
	JobTitle           string
	ScopeSummary       string
	CoreProfileSummary string
	// Language may be empty or "auto" to detect it from the first reply.
	Language string
}

// StartSession creates a session waiting for the first reply and returns the
// intro text asking for a CV.
func (s *Service) StartSession(p StartParams) (State, string) {
	now := s.now().UTC()
	lang := language.Normalize(p.Language)
	if lang == "" {
		lang = language.Auto
	}

	state := State{
		SessionID:          SessionID(p.ConversationID),
		ConversationID:     p.ConversationID,
		JobID:              p.JobID,
		CandidateID:        p.CandidateID,
		CandidateName:      p.CandidateName,
		JobTitle:           p.JobTitle,
		ScopeSummary:       p.ScopeSummary,
		CoreProfileSummary: p.CoreProfileSummary,
		Language:           lang,
		Status:             StatusAwaitingReply,
		MaxFollowups:       s.maxFollowups,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	state.NextFollowupAt = s.nextFollowup(now, 0)

	return state, s.catalog.Render(TemplateIntro, lang, state.vars())
}

// Outcome is the result of one inbound exchange.
type Outcome struct {
	State    State
	Event    string
	Intent   Intent
	Outbound string
}

// HandleInbound classifies text and advances the session. Terminal sessions
// are left untouched and produce no reply.
func (s *Service) HandleInbound(state State, text string) Outcome {
	if state.Status.IsTerminal() {
		return Outcome{State: state, Event: EventIgnoredTerminal}
	}

	now := s.now().UTC()
	if language.NeedsDetection(state.Language) && strings.TrimSpace(text) != "" {
		state.Language = language.Detect(text)
	}

	intent := Classify(text, state.AwaitingPreVettingOptIn)
	state.TurnsCount++
	state.LastIntent = intent
	state.UpdatedAt = now
	if links := ParseResumeLinks(text); len(links) > 0 {
		state.addResumeLinks(links)
	}

	var outbound string
	switch intent {
	case IntentResumeShared:
		state.Status = StatusResumeReceived
		state.NextFollowupAt = nil
		state.AwaitingPreVettingOptIn = false
		outbound = s.catalog.Render(TemplateResumeAck, state.Language, state.vars())
	case IntentNotInterested:
		state.Status = StatusNotInterested
		state.NextFollowupAt = nil
		state.AwaitingPreVettingOptIn = false
		outbound = s.catalog.Render(TemplateNotInterestedAck, state.Language, state.vars())
	case IntentWillSendLater:
		state.Status = StatusResumePromised
		state.NextFollowupAt = s.nextFollowup(now, state.FollowupsSent)
		outbound = s.catalog.Render(TemplateResumePromisedAck, state.Language, state.vars())
	case IntentPreVettingOptIn:
		state.Status = StatusInterviewOptIn
		state.NextFollowupAt = nil
		state.AwaitingPreVettingOptIn = false
		outbound = s.catalog.Render(TemplateOptInAck, state.Language, state.vars())
	default:
		state.Status = StatusEngagedNoResume
		state.NextFollowupAt = s.nextFollowup(now, state.FollowupsSent)
		outbound = joinParagraphs(
			s.catalog.Render(intentKey(intent), state.Language, state.vars()),
			s.catalog.Render(TemplateResumeCTA, state.Language, state.vars()),
		)
	}

	return Outcome{State: state, Event: EventInbound, Intent: intent, Outbound: outbound}
}

type FollowupResult struct {
	State  State
	Sent   bool
	Reason string
	Event  string
	Number int
	Text   string
}

// BuildFollowup produces the next reminder. The counter never exceeds the
// session's maximum: the call at the cap stalls the session instead.
func (s *Service) BuildFollowup(state State) FollowupResult {
	if state.Status.IsTerminal() {
		return FollowupResult{State: state, Reason: ReasonTerminalStatus, Event: EventFollowupSkipped}
	}

	now := s.now().UTC()
	maxFollowups := state.MaxFollowups
	if maxFollowups <= 0 {
		maxFollowups = s.maxFollowups
		state.MaxFollowups = maxFollowups
	}

	if state.FollowupsSent >= maxFollowups {
		state.Status = StatusStalled
		state.NextFollowupAt = nil
		state.UpdatedAt = now
		return FollowupResult{State: state, Reason: ReasonMaxFollowupsReached, Event: EventStalled}
	}

	n := state.FollowupsSent + 1
	state.FollowupsSent = n
	state.Status = StatusAwaitingReply
	state.UpdatedAt = now
	// After the last reminder the next due time is when the session stalls.
	state.NextFollowupAt = s.nextFollowup(now, n)

	return FollowupResult{
		State:  state,
		Sent:   true,
		Event:  EventFollowupSent,
		Number: n,
		Text:   s.catalog.RenderFollowup(n, state.Language, state.vars()),
	}
}

// Due reports whether a follow-up should be built for state at now.
func Due(state State, now time.Time) bool {
	if state.Status.IsTerminal() || state.NextFollowupAt == nil {
		return false
	}
	return !state.NextFollowupAt.After(now)
}

// AppendOptInPrompt adds the pre-vetting question to an engaged reply and
// marks the session as waiting for the answer. It returns the text unchanged
// when the question does not apply.
func (s *Service) AppendOptInPrompt(state *State, text string, hasInterview bool) string {
	if hasInterview || state.AwaitingPreVettingOptIn {
		return text
	}
	if state.Status.IsTerminal() || state.Status == StatusInterviewOptIn {
		return text
	}
	lowered := strings.ToLower(text)
	for _, m := range interviewMentions {
		if strings.Contains(lowered, m) {
			return text
		}
	}

	prompt := s.catalog.Render(TemplateOptInPrompt, state.Language, state.vars())
	if prompt == "" {
		return text
	}
	state.AwaitingPreVettingOptIn = true
	return joinParagraphs(text, prompt)
}

func (s *Service) nextFollowup(from time.Time, sent int) *time.Time {
	i := sent
	if i >= len(s.delays) {
		i = len(s.delays) - 1
	}
	at := from.Add(s.delays[i])
	return &at
}

func joinParagraphs(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
