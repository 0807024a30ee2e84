package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/tener-recruiter/internal/events"
	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/interview"
	"github.com/spigell/tener-recruiter/internal/language"
	"github.com/spigell/tener-recruiter/internal/logger"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/notes"
	"github.com/spigell/tener-recruiter/internal/store"
)

const remoteInvited = "invited"

// InterviewInvite is the outcome of inviting a candidate to the interview.
type InterviewInvite struct {
	Started   bool            `json:"started"`
	Reason    string          `json:"reason,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	EntryURL  string          `json:"entry_url,omitempty"`
	Status    string          `json:"status,omitempty"`
	Message   string          `json:"message,omitempty"`
	Delivery  *model.Delivery `json:"delivery,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// inviteToInterview starts a remote session and sends its link. A match that
// already has a live or scored session is left alone.
func (w *Workflow) inviteToInterview(ctx context.Context, job model.Job, cand model.Candidate, conv model.Conversation, lang string) InterviewInvite {
	log := w.convLogger(conv)

	match, err := w.store.GetCandidateMatch(ctx, conv.JobID, conv.CandidateID)
	if err != nil {
		return InterviewInvite{Reason: "match_not_found", Error: err.Error()}
	}
	if snap := match.Notes.Interview; snap != nil && snap.SessionID != "" && !reissuable(snap.Status) {
		return InterviewInvite{
			Reason:    "session_already_exists",
			SessionID: snap.SessionID,
			EntryURL:  snap.EntryURL,
			Status:    snap.Status,
		}
	}

	if w.assessments != nil {
		if a, prepared, err := w.assessments.Ensure(ctx, job); err != nil {
			log.Warn("prepare job assessment failed", zap.Error(err))
		} else if prepared {
			log.Info("job assessment prepared", zap.String("assessment_id", a.AssessmentID))
		}
	}

	if lang == "" || language.NeedsDetection(lang) {
		lang = language.PickCandidateLanguage(cand.Languages, fallbackLanguage)
	}
	sess, err := w.interview.StartSession(ctx, interview.StartRequest{
		JobID:          job.ID,
		CandidateID:    cand.ID,
		CandidateName:  cand.FullName,
		ConversationID: conv.ID,
		Language:       lang,
		TTLHours:       w.policy.Interview.TTLHours,
	})
	if err != nil {
		log.Error("start interview session failed", zap.Error(err))
		return InterviewInvite{Reason: "start_session_failed", Error: err.Error()}
	}
	if sess.SessionID == "" || sess.EntryURL == "" {
		log.Error("interview session without id or entry url", zap.String("session_id", sess.SessionID))
		return InterviewInvite{Reason: "missing_session_or_entry_url", SessionID: sess.SessionID}
	}
	status := normalizeRemote(sess.Status)
	if status == "" {
		status = remoteInvited
	}

	vars := messageVars{Name: cand.FirstName(), JobTitle: job.Title, URL: sess.EntryURL}
	fallback := renderMessage(interviewInviteTemplates, lang, vars)
	generated := w.generateReply(ctx, job, cand, lang, model.MessageInterviewInvite,
		"Invite the candidate to the async interview. Include this URL exactly: "+sess.EntryURL, nil)
	message := ensureURL(generated, fallback, sess.EntryURL)

	delivery := w.sendAuto(ctx, conv, cand, message, lang, model.MessageMeta{
		Type:      model.MessageInterviewInvite,
		SessionID: sess.SessionID,
	})

	now := w.now().UTC()
	snap := notes.InterviewSnapshot{
		SessionID:      sess.SessionID,
		Status:         status,
		EntryURL:       sess.EntryURL,
		Provider:       sess.Provider,
		InvitedAt:      &now,
		SyncedAt:       &now,
		NextFollowupAt: w.nextInterviewFollowup(now, 0),
	}
	if _, err := w.applyInterview(ctx, match, snap); err != nil {
		log.Error("store interview invite failed", zap.Error(err))
	}

	log.Info("interview invite sent", zap.String("session_id", sess.SessionID), zap.Bool("delivered", delivery.Sent))
	return InterviewInvite{
		Started:   true,
		SessionID: sess.SessionID,
		EntryURL:  sess.EntryURL,
		Status:    status,
		Message:   message,
		Delivery:  &delivery,
	}
}

// applyInterview stores the session snapshot and moves the match to the
// status the remote session implies. It is the only place that writes
// interview statuses.
func (w *Workflow) applyInterview(ctx context.Context, match model.Match, snap notes.InterviewSnapshot) (model.Match, error) {
	patch := notes.Notes{Interview: &snap}
	from := match.Status

	var err error
	if to, ok := interview.MatchStatus(snap.Status); ok {
		match, _, err = w.advance(ctx, match, to, patch)
	} else {
		match, err = w.store.UpdateCandidateMatchNotes(ctx, match.JobID, match.CandidateID, patch)
	}
	if err != nil {
		return match, err
	}

	w.publisher.Publish(ctx, events.Event{
		Type:        events.TypeInterviewSynced,
		JobID:       match.JobID,
		CandidateID: match.CandidateID,
		From:        string(from),
		To:          string(match.Status),
		Details:     map[string]any{"session_id": snap.SessionID, "interview_status": snap.Status, "total_score": snap.TotalScore},
	})
	return match, nil
}

// reissuable reports whether a new session may replace one in this status.
func reissuable(status string) bool {
	return interview.IsFinal(status) && normalizeRemote(status) != "scored"
}

func normalizeRemote(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func (w *Workflow) nextInterviewFollowup(from time.Time, sent int) *time.Time {
	if sent >= w.policy.Interview.MaxFollowups {
		return nil
	}
	delays := w.policy.Interview.FollowupDelays
	i := sent
	if i >= len(delays) {
		i = len(delays) - 1
	}
	at := from.Add(delays[i])
	return &at
}

type InterviewSyncItem struct {
	JobID           int64    `json:"job_id"`
	CandidateID     int64    `json:"candidate_id"`
	SessionID       string   `json:"session_id"`
	InterviewStatus string   `json:"interview_status,omitempty"`
	Updated         bool     `json:"updated"`
	TotalScore      *float64 `json:"total_score,omitempty"`
	Error           string   `json:"error,omitempty"`
}

type InterviewSyncResult struct {
	Processed int                 `json:"processed"`
	Updated   int                 `json:"updated"`
	Errors    int                 `json:"errors"`
	Items     []InterviewSyncItem `json:"items"`
	Reason    string              `json:"reason,omitempty"`
}

// SyncInterviewProgress pulls remote session state into the matches. A match
// without a known session is looked up in the job's remote session list.
// Running it twice in a row changes nothing the second time. jobID 0 syncs
// all jobs.
func (w *Workflow) SyncInterviewProgress(ctx context.Context, jobID int64, force bool) (InterviewSyncResult, error) {
	res := InterviewSyncResult{Items: []InterviewSyncItem{}}
	if w.interview == nil {
		res.Reason = "interview_not_configured"
		return res, nil
	}

	jobs, err := w.jobsFor(ctx, jobID)
	if err != nil {
		return res, err
	}

	for _, job := range jobs {
		rows, err := w.store.ListCandidatesForJob(ctx, job.ID)
		if err != nil {
			return res, fmt.Errorf("listing candidates of job %d: %w", job.ID, err)
		}

		var index map[int64]interview.Session
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return res, err
			}

			var sessionID string
			var listed *interview.Session
			if snap := row.Match.Notes.Interview; snap != nil {
				sessionID = snap.SessionID
			}
			if sessionID == "" {
				if index == nil {
					index = w.remoteSessionIndex(ctx, job.ID)
				}
				if s, ok := index[row.Candidate.ID]; ok {
					sessionID = s.SessionID
					listed = &s
				}
			}
			if sessionID == "" {
				continue
			}

			res.Processed++
			item := w.syncOne(ctx, row.Match, sessionID, listed, force)
			if item.Error != "" {
				res.Errors++
			}
			if item.Updated {
				res.Updated++
			}
			res.Items = append(res.Items, item)
		}
	}

	w.logger.Info("interview sync finished",
		zap.Int("processed", res.Processed),
		zap.Int("updated", res.Updated),
		zap.Int("errors", res.Errors),
	)
	return res, nil
}

func (w *Workflow) remoteSessionIndex(ctx context.Context, jobID int64) map[int64]interview.Session {
	index := map[int64]interview.Session{}
	sessions, err := w.interview.ListSessions(ctx, jobID, "", maxBatchLimit)
	if err != nil {
		w.logger.Warn("list interview sessions failed", zap.Int64(logger.FieldJobID, jobID), zap.Error(err))
		return index
	}
	for _, s := range sessions {
		if s.SessionID == "" || s.CandidateID <= 0 {
			continue
		}
		if _, seen := index[s.CandidateID]; !seen {
			index[s.CandidateID] = s
		}
	}
	return index
}

func (w *Workflow) syncOne(ctx context.Context, match model.Match, sessionID string, listed *interview.Session, force bool) InterviewSyncItem {
	item := InterviewSyncItem{JobID: match.JobID, CandidateID: match.CandidateID, SessionID: sessionID}
	log := logger.WithFields(w.logger, logger.ConversationFields(match.JobID, match.CandidateID, 0, "")...)

	sess, err := w.interview.RefreshSession(ctx, sessionID, force)
	if err != nil {
		log.Debug("refresh interview session failed", zap.String("session_id", sessionID), zap.Error(err))
		sess, err = w.interview.GetSession(ctx, sessionID)
	}
	if err != nil {
		if listed == nil {
			log.Warn("load interview session failed", zap.String("session_id", sessionID), zap.Error(err))
			item.Error = err.Error()
			return item
		}
		sess = *listed
	}

	status := normalizeRemote(sess.Status)
	item.InterviewStatus = status
	if status == "" {
		return item
	}
	score := sess.Score()
	if score == nil && status == "scored" {
		if card, err := w.interview.GetScorecard(ctx, sessionID); err == nil {
			score = card.TotalScore
		} else {
			log.Warn("load interview scorecard failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	item.TotalScore = score

	var snap notes.InterviewSnapshot
	existing := match.Notes.Interview
	if existing != nil {
		snap = *existing
	}
	changed := existing == nil || existing.SessionID != sessionID || existing.Status != status ||
		(score != nil && !sameScore(existing.TotalScore, score))

	mapped, mappable := interview.MatchStatus(status)
	if !changed && !(mappable && funnel.IsTransitionAllowed(match.Status, mapped)) {
		return item
	}

	now := w.now().UTC()
	snap.SessionID = sessionID
	snap.Status = status
	snap.SyncedAt = &now
	if snap.EntryURL == "" {
		snap.EntryURL = sess.EntryURL
	}
	if snap.Provider == "" {
		snap.Provider = sess.Provider
	}
	if score != nil && !sameScore(snap.TotalScore, score) {
		v := *score
		snap.TotalScore = &v
		snap.ScoredAt = &now
	}
	if interview.IsFinal(status) {
		snap.NextFollowupAt = nil
	}

	if _, err := w.applyInterview(ctx, match, snap); err != nil {
		log.Error("store interview progress failed", zap.Error(err))
		item.Error = err.Error()
		return item
	}
	item.Updated = true
	return item
}

func sameScore(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type InterviewFollowupItem struct {
	JobID          int64           `json:"job_id"`
	CandidateID    int64           `json:"candidate_id"`
	SessionID      string          `json:"session_id"`
	Status         string          `json:"status"`
	FollowupNumber int             `json:"followup_number,omitempty"`
	Delivery       *model.Delivery `json:"delivery,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

type InterviewFollowupResult struct {
	Processed int                     `json:"processed"`
	Sent      int                     `json:"sent"`
	Skipped   int                     `json:"skipped"`
	Errors    int                     `json:"errors"`
	Items     []InterviewFollowupItem `json:"items"`
	Reason    string                  `json:"reason,omitempty"`
}

// RunDueInterviewFollowups reminds invited candidates whose next reminder is
// due and who have not finished the interview. Progress is synced first.
func (w *Workflow) RunDueInterviewFollowups(ctx context.Context, jobID int64, limit int) (InterviewFollowupResult, error) {
	res := InterviewFollowupResult{Items: []InterviewFollowupItem{}}
	if w.interview == nil {
		res.Reason = "interview_not_configured"
		return res, nil
	}
	if _, err := w.SyncInterviewProgress(ctx, jobID, false); err != nil {
		w.logger.Warn("interview sync before follow-ups failed", zap.Error(err))
	}

	jobs, err := w.jobsFor(ctx, jobID)
	if err != nil {
		return res, err
	}
	limit = clampLimit(limit, defaultPendingLimit, maxBatchLimit)
	now := w.now().UTC()

	for _, job := range jobs {
		rows, err := w.store.ListCandidatesForJob(ctx, job.ID)
		if err != nil {
			return res, fmt.Errorf("listing candidates of job %d: %w", job.ID, err)
		}
		for _, row := range rows {
			if res.Processed >= limit {
				return res, nil
			}
			if !w.interviewFollowupDue(row.Match, now) {
				continue
			}
			res.Processed++
			item := w.interviewFollowup(ctx, job, row, now)
			switch item.Status {
			case model.DeliverySent:
				res.Sent++
			case "skipped":
				res.Skipped++
			default:
				res.Errors++
			}
			res.Items = append(res.Items, item)
		}
	}
	return res, nil
}

func (w *Workflow) interviewFollowupDue(match model.Match, now time.Time) bool {
	snap := match.Notes.Interview
	if snap == nil || snap.SessionID == "" || snap.EntryURL == "" {
		return false
	}
	if funnel.IsTerminal(match.Status) {
		return false
	}
	switch normalizeRemote(snap.Status) {
	case "created", remoteInvited, "in_progress":
	default:
		return false
	}
	if snap.FollowupsSent >= w.policy.Interview.MaxFollowups {
		return false
	}
	return snap.NextFollowupAt != nil && !snap.NextFollowupAt.After(now)
}

func (w *Workflow) interviewFollowup(ctx context.Context, job model.Job, row model.CandidateMatch, now time.Time) InterviewFollowupItem {
	snap := *row.Match.Notes.Interview
	item := InterviewFollowupItem{JobID: job.ID, CandidateID: row.Candidate.ID, SessionID: snap.SessionID}

	conv, err := w.conversationFor(ctx, job.ID, row.Candidate.ID)
	if err != nil {
		item.Status, item.Reason = "error", "conversation_not_found"
		return item
	}

	n := snap.FollowupsSent + 1
	item.FollowupNumber = n
	lang := w.conversationLanguage(ctx, conv, row.Candidate)
	templates := interviewFirstFollowup
	if n > 1 {
		templates = interviewLastFollowup
	}
	vars := messageVars{Name: row.Candidate.FirstName(), JobTitle: job.Title, URL: snap.EntryURL}
	fallback := renderMessage(templates, lang, vars)
	generated := w.generateReply(ctx, job, row.Candidate, lang, model.MessageInterviewFollowup,
		fmt.Sprintf("Interview reminder number %d. Include this URL exactly: %s", n, snap.EntryURL), nil)
	message := ensureURL(generated, fallback, snap.EntryURL)

	delivery := w.sendAuto(ctx, conv, row.Candidate, message, lang, model.MessageMeta{
		Type:      model.MessageInterviewFollowup,
		SessionID: snap.SessionID,
	})
	item.Delivery = &delivery

	snap.FollowupsSent = n
	snap.LastFollowupAt = &now
	snap.NextFollowupAt = w.nextInterviewFollowup(now, n)
	if _, err := w.store.UpdateCandidateMatchNotes(ctx, job.ID, row.Candidate.ID, notes.Notes{Interview: &snap}); err != nil {
		w.convLogger(conv).Error("store interview follow-up failed", zap.Error(err))
	}

	if delivery.Sent {
		item.Status = model.DeliverySent
	} else {
		item.Status, item.Reason = "delivery_error", delivery.Error
	}
	return item
}

// conversationFor returns the conversation of the job, falling back to the
// candidate's most recent one.
func (w *Workflow) conversationFor(ctx context.Context, jobID, candidateID int64) (model.Conversation, error) {
	convs, err := w.store.ListConversations(ctx, store.ConversationFilter{JobID: jobID, CandidateID: candidateID})
	if err != nil {
		return model.Conversation{}, err
	}
	if len(convs) > 0 {
		return convs[len(convs)-1], nil
	}
	return w.store.GetLatestConversationForCandidate(ctx, candidateID)
}

// conversationLanguage prefers the language the pre-resume session settled on.
func (w *Workflow) conversationLanguage(ctx context.Context, conv model.Conversation, cand model.Candidate) string {
	state, err := w.store.GetPreResumeSessionByConversation(ctx, conv.ID)
	if err == nil && !language.NeedsDetection(state.Language) {
		return state.Language
	}
	return language.PickCandidateLanguage(cand.Languages, fallbackLanguage)
}

func (w *Workflow) jobsFor(ctx context.Context, jobID int64) ([]model.Job, error) {
	if jobID > 0 {
		job, err := w.loadJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return []model.Job{job}, nil
	}
	jobs, err := w.store.ListJobs(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}
