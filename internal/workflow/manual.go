package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/tener-recruiter/internal/events"
	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/language"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/notes"
)

const manualIDPrefix = "manual-"

// ManualAccount is an operator-managed test candidate.
type ManualAccount struct {
	FullName string `json:"full_name" validate:"required"`
	// Identifier is the handle messages are addressed to. A random one is
	// generated when empty.
	Identifier string `json:"identifier,omitempty"`
	Language   string `json:"language,omitempty" validate:"omitempty,oneof=en ru es auto"`
}

type ManualAccountResult struct {
	Candidate      model.Candidate `json:"candidate"`
	ConversationID int64           `json:"conversation_id"`
	SessionID      string          `json:"session_id"`
	Delivery       model.Delivery  `json:"delivery"`
	Status         funnel.Status   `json:"status"`
}

// AddManualTestAccount adds a test candidate to the job and opens a
// pre-resume conversation with it on the manual channel.
func (w *Workflow) AddManualTestAccount(ctx context.Context, jobID int64, acc ManualAccount) (ManualAccountResult, error) {
	if err := validatePayload(acc); err != nil {
		return ManualAccountResult{}, err
	}
	if w.manual == nil {
		return ManualAccountResult{}, fmt.Errorf("manual channel is not configured: %w", ErrInvalidArgument)
	}
	job, err := w.loadJob(ctx, jobID)
	if err != nil {
		return ManualAccountResult{}, err
	}

	id := strings.TrimSpace(acc.Identifier)
	if id == "" {
		id = manualIDPrefix + uuid.NewString()
	}
	var langs []string
	if l := language.Normalize(acc.Language); l != "" && !language.NeedsDetection(l) {
		langs = []string{l}
	}

	cand, err := w.store.UpsertCandidate(ctx, model.Candidate{
		LinkedInID: id,
		FullName:   strings.TrimSpace(acc.FullName),
		Languages:  langs,
		Raw:        map[string]any{"provider_id": id, "source": string(model.ChannelManual)},
	})
	if err != nil {
		return ManualAccountResult{}, fmt.Errorf("storing manual candidate: %w", err)
	}

	match, err := w.store.CreateCandidateMatch(ctx, model.Match{
		JobID:       job.ID,
		CandidateID: cand.ID,
		Status:      funnel.StatusNeedsResume,
		Notes:       notes.Notes{Verification: &notes.Verification{Verdict: string(funnel.StatusNeedsResume), Explanation: "manual test account"}},
	})
	if err != nil {
		return ManualAccountResult{}, fmt.Errorf("storing manual match: %w", err)
	}

	conv, _, err := w.store.GetOrCreateConversation(ctx, job.ID, cand.ID, model.ChannelManual)
	if err != nil {
		return ManualAccountResult{}, fmt.Errorf("creating manual conversation: %w", err)
	}
	log := w.convLogger(conv)

	state, intro, err := w.ensureSession(ctx, job, cand, conv, acc.Language)
	if err != nil {
		return ManualAccountResult{}, err
	}
	lang := state.Language
	if language.NeedsDetection(lang) {
		lang = fallbackLanguage
	}

	delivery, err := w.sendAutoErr(ctx, conv, cand, intro, lang, model.MessageMeta{
		Type:          model.MessageOutreach,
		SessionID:     state.SessionID,
		RequestResume: true,
	})
	res := ManualAccountResult{
		Candidate:      cand,
		ConversationID: conv.ID,
		SessionID:      state.SessionID,
		Delivery:       delivery,
		Status:         match.Status,
	}
	if err != nil {
		return res, fmt.Errorf("sending manual intro: %w", err)
	}

	if delivery.ChatID != "" {
		w.bindChat(ctx, conv, delivery.ChatID)
	}
	patch := notes.Notes{
		PreResume: &notes.PreResumePointer{SessionID: state.SessionID, Status: string(state.Status)},
		Outreach:  &notes.OutreachState{State: outreachSent, UpdatedAt: w.timestamp()},
	}
	updated, _, err := w.advance(ctx, match, funnel.StatusOutreachSent, patch)
	if err != nil {
		return res, err
	}
	res.Status = updated.Status

	w.publisher.Publish(ctx, events.Event{
		Type:           events.TypeOutreachResult,
		JobID:          job.ID,
		CandidateID:    cand.ID,
		ConversationID: conv.ID,
		To:             model.DeliverySent,
		Details:        map[string]any{"channel": string(model.ChannelManual), "request_resume": true},
	})
	log.Info("manual test account added", zap.String("identifier", id))
	return res, nil
}
