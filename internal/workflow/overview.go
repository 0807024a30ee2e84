package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/preresume"
	"github.com/spigell/tener-recruiter/internal/scoring"
	"github.com/spigell/tener-recruiter/internal/store"
)

// CandidateOverview is one row of the job's candidate table.
type CandidateOverview struct {
	CandidateID         int64          `json:"candidate_id"`
	FullName            string         `json:"full_name"`
	LinkedInID          string         `json:"linkedin_id"`
	MatchStatus         funnel.Status  `json:"match_status"`
	CurrentStatusKey    string         `json:"current_status_key"`
	CurrentStatusLabel  string         `json:"current_status_label"`
	SourcingScore       *float64       `json:"sourcing_score,omitempty"`
	CommunicationScore  *float64       `json:"communication_score,omitempty"`
	CommunicationStatus string         `json:"communication_status,omitempty"`
	InterviewScore      *float64       `json:"interview_score,omitempty"`
	InterviewStatus     string         `json:"interview_status,omitempty"`
	ConversationID      int64          `json:"conversation_id,omitempty"`
	Overall             scoring.Result `json:"overall"`
}

// CandidateOverview lists the job's candidates with their current status and
// overall score, best first. Nothing is written.
func (w *Workflow) CandidateOverview(ctx context.Context, jobID int64) ([]CandidateOverview, error) {
	if _, err := w.loadJob(ctx, jobID); err != nil {
		return nil, err
	}
	rows, err := w.store.ListCandidatesForJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing candidates of job %d: %w", jobID, err)
	}

	out := make([]CandidateOverview, 0, len(rows))
	for _, row := range rows {
		item, err := w.overviewOne(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Overall.Score, out[j].Overall.Score
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return *a > *b
	})
	return out, nil
}

func (w *Workflow) overviewOne(ctx context.Context, row model.CandidateMatch) (CandidateOverview, error) {
	m := row.Match
	proj := funnel.Project(m.Status)
	item := CandidateOverview{
		CandidateID:        row.Candidate.ID,
		FullName:           row.Candidate.FullName,
		LinkedInID:         row.Candidate.LinkedInID,
		MatchStatus:        m.Status,
		CurrentStatusKey:   proj.Key,
		CurrentStatusLabel: proj.Label,
	}
	if m.Status != funnel.StatusAdded {
		sourcing := m.Score
		item.SourcingScore = &sourcing
	}
	if snap := m.Notes.Interview; snap != nil {
		item.InterviewStatus = snap.Status
		item.InterviewScore = snap.TotalScore
	}

	var (
		sessionStatus preresume.Status
		hasSession    bool
		hasInbound    bool
	)
	convs, err := w.store.ListConversations(ctx, store.ConversationFilter{JobID: m.JobID, CandidateID: m.CandidateID})
	if err != nil {
		return item, fmt.Errorf("listing conversations: %w", err)
	}
	for _, conv := range convs {
		item.ConversationID = conv.ID
		state, err := w.store.GetPreResumeSessionByConversation(ctx, conv.ID)
		switch {
		case err == nil:
			sessionStatus, hasSession = state.Status, true
		case !errors.Is(err, store.ErrNotFound):
			return item, fmt.Errorf("loading pre-resume session: %w", err)
		}
		msgs, err := w.store.ListMessages(ctx, conv.ID)
		if err != nil {
			return item, fmt.Errorf("listing messages: %w", err)
		}
		for _, msg := range msgs {
			if msg.Direction == model.DirectionInbound {
				hasInbound = true
				break
			}
		}
	}

	if score, status, ok := scoring.Communication(sessionStatus, hasSession, hasInbound); ok {
		item.CommunicationScore = &score
		item.CommunicationStatus = status
	}

	item.Overall = scoring.Overall(scoring.Input{
		Status:              m.Status,
		Sourcing:            item.SourcingScore,
		Communication:       item.CommunicationScore,
		CommunicationStatus: item.CommunicationStatus,
		Interview:           item.InterviewScore,
	})
	return item, nil
}
