package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/logger"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/notes"
	"github.com/spigell/tener-recruiter/internal/preresume"
)

type FollowupItem struct {
	SessionID      string          `json:"session_id"`
	ConversationID int64           `json:"conversation_id"`
	CandidateID    int64           `json:"candidate_id"`
	Status         string          `json:"status"`
	FollowupNumber int             `json:"followup_number,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Delivery       *model.Delivery `json:"delivery,omitempty"`
}

type FollowupResult struct {
	Processed int            `json:"processed"`
	Sent      int            `json:"sent"`
	Skipped   int            `json:"skipped"`
	Errors    int            `json:"errors"`
	Items     []FollowupItem `json:"items"`
}

// Follow-up item statuses.
const (
	followupSent        = "sent"
	followupSkipped     = "skipped"
	followupStalled     = "stalled"
	followupError       = "error"
)

// RunDuePreResumeFollowups chases candidates whose pre-resume reminder is due.
// Sessions at the reminder cap stall. Undelivered reminders are counted as
// errors and retried on the next pass. jobID 0 covers all jobs.
func (w *Workflow) RunDuePreResumeFollowups(ctx context.Context, jobID int64, limit int) (FollowupResult, error) {
	res := FollowupResult{Items: []FollowupItem{}}
	limit = clampLimit(limit, defaultPendingLimit, maxBatchLimit)

	due, err := w.store.ListDuePreResumeSessions(ctx, jobID, w.now().UTC(), limit)
	if err != nil {
		return res, fmt.Errorf("listing due pre-resume sessions: %w", err)
	}

	for _, state := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Processed++
		item := w.followupOne(ctx, state)
		switch item.Status {
		case followupSent:
			res.Sent++
		case followupError:
			res.Errors++
		default:
			res.Skipped++
		}
		res.Items = append(res.Items, item)
	}

	if res.Processed > 0 {
		w.logger.Info("pre-resume follow-ups processed",
			zap.Int64(logger.FieldJobID, jobID),
			zap.Int("processed", res.Processed),
			zap.Int("sent", res.Sent),
			zap.Int("skipped", res.Skipped),
			zap.Int("errors", res.Errors),
		)
	}
	return res, nil
}

func (w *Workflow) followupOne(ctx context.Context, state preresume.State) FollowupItem {
	item := FollowupItem{SessionID: state.SessionID, ConversationID: state.ConversationID, CandidateID: state.CandidateID}

	conv, err := w.store.GetConversation(ctx, state.ConversationID)
	if err != nil {
		item.Status, item.Reason = followupError, "conversation_not_found"
		return item
	}
	log := w.convLogger(conv).With(zap.String("session_id", state.SessionID))

	// The intro itself has not reached the candidate yet.
	if conv.Status == model.ConversationWaitingConnection {
		item.Status, item.Reason = followupSkipped, "waiting_connection"
		return item
	}

	cand, err := w.store.GetCandidate(ctx, conv.CandidateID)
	if err != nil {
		item.Status, item.Reason = followupError, "candidate_not_found"
		return item
	}

	fu := w.preResume.BuildFollowup(state)
	if !fu.Sent {
		if err := w.store.UpsertPreResumeSession(ctx, fu.State); err != nil {
			log.Error("store pre-resume session failed", zap.Error(err))
		}
		w.recordSessionEvent(ctx, fu.State, fu.Event, "", "", "", map[string]any{"reason": fu.Reason})

		item.Reason = fu.Reason
		item.Status = followupSkipped
		if fu.Reason == preresume.ReasonMaxFollowupsReached {
			item.Status = followupStalled
			w.advanceFromSession(ctx, conv, fu.State, funnel.StatusStalled)
			log.Info("pre-resume session stalled", zap.Int("followups_sent", fu.State.FollowupsSent))
		}
		return item
	}

	item.FollowupNumber = fu.Number
	delivery, sendErr := w.sendAutoErr(ctx, conv, cand, fu.Text, fu.State.Language, model.MessageMeta{
		Type:          model.MessagePreResumeFollowup,
		SessionID:     fu.State.SessionID,
		RequestResume: true,
	})
	item.Delivery = &delivery

	if !delivery.Sent {
		// The session keeps its schedule, so the next pass tries again.
		log.Warn("pre-resume follow-up not delivered",
			zap.String("error", delivery.Error),
			zap.Bool("retryable", retryable(sendErr, delivery)),
		)
		item.Status, item.Reason = followupError, delivery.Error
		return item
	}

	if err := w.store.UpsertPreResumeSession(ctx, fu.State); err != nil {
		log.Error("store pre-resume session failed", zap.Error(err))
	}
	w.recordSessionEvent(ctx, fu.State, fu.Event, "", "", fu.Text, map[string]any{"followup_number": fu.Number})

	item.Status = followupSent
	return item
}

func (w *Workflow) advanceFromSession(ctx context.Context, conv model.Conversation, state preresume.State, to funnel.Status) {
	patch := notes.Notes{PreResume: &notes.PreResumePointer{SessionID: state.SessionID, Status: string(state.Status)}}
	if _, err := w.advanceByIDs(ctx, conv.JobID, conv.CandidateID, to, patch); err != nil {
		w.convLogger(conv).Error("update match from pre-resume session failed", zap.String("to", string(to)), zap.Error(err))
	}
}
