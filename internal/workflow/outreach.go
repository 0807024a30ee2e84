package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/tener-recruiter/internal/events"
	"github.com/spigell/tener-recruiter/internal/filtering"
	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/language"
	"github.com/spigell/tener-recruiter/internal/logger"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/notes"
	"github.com/spigell/tener-recruiter/internal/preresume"
	"github.com/spigell/tener-recruiter/internal/provider"
	"github.com/spigell/tener-recruiter/internal/store"
)

// Outreach states kept in the match notes.
const (
	outreachSending             = "sending"
	outreachSent                = "sent"
	outreachWaitingConnection   = "waiting_connection"
	outreachSentAfterConnection = "sent_after_connection"
	outreachFailed              = "failed"
)

const (
	defaultPendingLimit = 200
	maxScopeSummary     = 160
)

type OutreachItem struct {
	CandidateID    int64                 `json:"candidate_id"`
	ConversationID int64                 `json:"conversation_id,omitempty"`
	Status         string                `json:"status"`
	RequestResume  bool                  `json:"request_resume"`
	SessionID      string                `json:"session_id,omitempty"`
	Delivery       *model.Delivery       `json:"delivery,omitempty"`
	ConnectRequest *model.ConnectRequest `json:"connect_request,omitempty"`
	ChatBinding    *model.ChatBinding    `json:"chat_binding,omitempty"`
	Error          string                `json:"error,omitempty"`
}

// OutreachResult classifies every attempted candidate into exactly one of
// sent, pending connection or failed. Candidates removed by filters are only
// counted.
type OutreachResult struct {
	Items             []OutreachItem     `json:"items"`
	Total             int                `json:"total"`
	Sent              int                `json:"sent"`
	PendingConnection int                `json:"pending_connection"`
	Failed            int                `json:"failed"`
	TestFilterSkipped int                `json:"test_filter_skipped"`
	Excluded          int                `json:"excluded"`
	Ineligible        int                `json:"ineligible"`
	ConversationIDs   []int64            `json:"conversation_ids"`
	Filters           []filtering.Status `json:"filters,omitempty"`
}

func (r *OutreachResult) add(item OutreachItem) {
	r.Items = append(r.Items, item)
	r.Total++
	switch item.Status {
	case model.DeliverySent:
		r.Sent++
	case model.DeliveryPendingConnection:
		r.PendingConnection++
	default:
		r.Failed++
	}
	if item.ConversationID > 0 {
		r.ConversationIDs = append(r.ConversationIDs, item.ConversationID)
	}
}

// OutreachCandidates delivers the first message to the given candidates of a
// job. Recipients that need a connection get a connection request and wait.
func (w *Workflow) OutreachCandidates(ctx context.Context, jobID int64, candidateIDs []int64) (OutreachResult, error) {
	job, err := w.loadJob(ctx, jobID)
	if err != nil {
		return OutreachResult{}, err
	}
	res := OutreachResult{Items: []OutreachItem{}, ConversationIDs: []int64{}}
	if len(candidateIDs) == 0 {
		return res, nil
	}

	rows, err := w.store.ListCandidatesForJob(ctx, jobID)
	if err != nil {
		return res, fmt.Errorf("listing candidates of job %d: %w", jobID, err)
	}
	byID := make(map[int64]model.CandidateMatch, len(rows))
	for _, row := range rows {
		byID[row.Candidate.ID] = row
	}

	targets := make([]model.CandidateMatch, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		row, ok := byID[id]
		if !ok {
			res.add(OutreachItem{CandidateID: id, Status: model.DeliveryFailed, Error: "candidate_not_in_job"})
			continue
		}
		targets = append(targets, row)
	}

	pipeline := filtering.New([]filtering.Filter{
		filtering.NewForcedTest(w.policy.ForcedTest, jobID),
		filtering.NewExcludeFile(w.policy.ExcludeFile),
		filtering.NewEligibleStatus(),
	}, w.logger)
	for _, name := range w.policy.SkipFilters {
		if name != filtering.EligibleStatusName {
			pipeline.DisableByName(name, "skipped by policy")
		}
	}
	res.Filters = pipeline.Describe()
	targets, err = pipeline.Run(ctx, targets)
	if err != nil {
		return res, fmt.Errorf("filtering outreach targets: %w", err)
	}
	res.TestFilterSkipped = pipeline.Dropped(filtering.ForcedTestName)
	res.Excluded = pipeline.Dropped(filtering.ExcludeFileName)
	res.Ineligible = pipeline.Dropped(filtering.EligibleStatusName)

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.add(w.outreachOne(ctx, job, target))
	}

	w.logger.Info("outreach finished",
		zap.Int64(logger.FieldJobID, jobID),
		zap.Int("total", res.Total),
		zap.Int("sent", res.Sent),
		zap.Int("pending_connection", res.PendingConnection),
		zap.Int("failed", res.Failed),
		zap.Int("test_filter_skipped", res.TestFilterSkipped),
	)
	return res, nil
}

func (w *Workflow) outreachOne(ctx context.Context, job model.Job, target model.CandidateMatch) OutreachItem {
	cand, match := target.Candidate, target.Match
	item := OutreachItem{CandidateID: cand.ID, Status: model.DeliveryFailed}

	conv, _, err := w.store.GetOrCreateConversation(ctx, job.ID, cand.ID, model.ChannelLinkedIn)
	if err != nil {
		item.Error = fmt.Sprintf("creating conversation: %v", err)
		return item
	}
	item.ConversationID = conv.ID
	log := w.convLogger(conv)

	if w.policy.AccountID != "" && conv.LinkedInAccountID == "" {
		if err := w.store.SetConversationLinkedInAccount(ctx, conv.ID, w.policy.AccountID); err != nil {
			log.Warn("set conversation account failed", zap.Error(err))
		}
	}

	lang := language.PickCandidateLanguage(cand.Languages, "")
	item.RequestResume = w.policy.RequireResume || match.Status == funnel.StatusNeedsResume

	var text string
	var patch notes.Notes
	if item.RequestResume {
		state, intro, err := w.ensureSession(ctx, job, cand, conv, lang)
		if err != nil {
			item.Error = err.Error()
			return item
		}
		text = intro
		item.SessionID = state.SessionID
		patch.PreResume = &notes.PreResumePointer{SessionID: state.SessionID, Status: string(state.Status)}
		if !language.NeedsDetection(state.Language) {
			lang = state.Language
		}
	} else {
		text = renderMessage(outreachTemplates, lang, messageVars{Name: cand.FirstName(), JobTitle: job.Title})
	}

	ch, err := w.channelFor(conv)
	if err != nil {
		item.Error = err.Error()
		return item
	}

	// A crash during the provider call leaves this marker behind.
	sending := patch
	sending.Outreach = &notes.OutreachState{State: outreachSending, UpdatedAt: w.timestamp()}
	if _, err := w.store.UpdateCandidateMatchNotes(ctx, job.ID, cand.ID, sending); err != nil {
		item.Error = fmt.Sprintf("persisting outreach state: %v", err)
		log.Error("persist outreach state failed", zap.Error(err))
		return item
	}

	delivery, connect, status := w.deliver(ctx, ch, cand, job, lang, text)
	item.Status = status
	item.Delivery = &delivery
	item.ConnectRequest = connect
	if status == model.DeliveryFailed {
		item.Error = delivery.Error
		if connect != nil && connect.Error != "" && !connect.AlreadyConnected {
			item.Error = connect.Error
		}
	}

	var to funnel.Status
	var convStatus model.ConversationStatus
	switch status {
	case model.DeliverySent:
		to, convStatus = funnel.StatusOutreachSent, model.ConversationActive
		patch.Outreach = &notes.OutreachState{State: outreachSent, UpdatedAt: w.timestamp()}
	case model.DeliveryPendingConnection:
		to, convStatus = funnel.StatusOutreachPendingConnection, model.ConversationWaitingConnection
		patch.Outreach = &notes.OutreachState{State: outreachWaitingConnection, ConnectRequestID: connect.RequestID, UpdatedAt: w.timestamp()}
	default:
		to = match.Status
		patch.Outreach = &notes.OutreachState{State: outreachFailed, Error: item.Error, UpdatedAt: w.timestamp()}
	}

	if convStatus != "" {
		if err := w.store.UpdateConversationStatus(ctx, conv.ID, convStatus); err != nil {
			log.Error("update conversation status failed", zap.Error(err))
		}
	}
	if _, _, err := w.advance(ctx, match, to, patch); err != nil {
		log.Error("update match after outreach failed", zap.Error(err))
	}

	if delivery.ChatID != "" {
		binding := w.bindChat(ctx, conv, delivery.ChatID)
		item.ChatBinding = &binding
	}

	msgType := model.MessageOutreach
	if status == model.DeliveryPendingConnection {
		msgType = model.MessageOutreachPendingConnection
	}
	_, err = w.store.AddMessage(ctx, model.Message{
		ConversationID: conv.ID,
		Direction:      model.DirectionOutbound,
		Content:        text,
		Language:       lang,
		Meta: model.MessageMeta{
			Type:            msgType,
			Auto:            true,
			Delivery:        &delivery,
			DeliveryStatus:  status,
			ConnectRequest:  connect,
			PendingDelivery: status == model.DeliveryPendingConnection,
			RequestResume:   item.RequestResume,
			SessionID:       item.SessionID,
			ExternalChatID:  delivery.ChatID,
			ChatBinding:     item.ChatBinding,
		},
	})
	if err != nil {
		log.Error("store outreach message failed", zap.Error(err))
	}

	w.publisher.Publish(ctx, events.Event{
		Type:           events.TypeOutreachResult,
		JobID:          job.ID,
		CandidateID:    cand.ID,
		ConversationID: conv.ID,
		To:             status,
		Details:        map[string]any{"request_resume": item.RequestResume, "error": item.Error},
	})
	log.Info("outreach delivered", zap.String("delivery_status", status), zap.Bool("request_resume", item.RequestResume))
	return item
}

// deliver sends text directly and falls back to a connection request when
// the recipient is not connected yet. An "already connected" answer earns
// one more direct attempt.
func (w *Workflow) deliver(ctx context.Context, ch provider.Channel, cand model.Candidate, job model.Job, lang, text string) (model.Delivery, *model.ConnectRequest, string) {
	delivery, err := ch.SendMessage(ctx, cand, text)
	if err == nil && delivery.Sent {
		return delivery, nil, model.DeliverySent
	}
	delivery = withError(delivery, err)
	if !provider.IsConnectionRequired(err) && !provider.ContainsConnectionRequired(delivery.Error) {
		return delivery, nil, model.DeliveryFailed
	}

	note := renderMessage(connectionNotes, lang, messageVars{Name: cand.FirstName(), JobTitle: job.Title})
	cr, crErr := ch.SendConnectionRequest(ctx, cand, note)
	if crErr != nil && cr.Error == "" {
		cr.Error = crErr.Error()
	}
	switch {
	case crErr == nil && cr.Sent:
		return delivery, &cr, model.DeliveryPendingConnection
	case cr.AlreadyConnected || provider.IsAlreadyConnected(cr.Error):
		retry, err := ch.SendMessage(ctx, cand, text)
		if err == nil && retry.Sent {
			return retry, &cr, model.DeliverySent
		}
		return withError(retry, err), &cr, model.DeliveryFailed
	}
	return delivery, &cr, model.DeliveryFailed
}

// retryable reports whether a failed delivery may succeed on a later attempt.
func retryable(err error, d model.Delivery) bool {
	return provider.IsConnectionRequired(err) || provider.ContainsConnectionRequired(d.Error) ||
		provider.IsTransient(err)
}

func withError(d model.Delivery, err error) model.Delivery {
	switch {
	case d.Error != "":
	case err != nil:
		d.Error = err.Error()
	case !d.Sent:
		d.Error = "message_not_sent"
	}
	return d
}

// ensureSession returns the conversation's open pre-resume session and its
// intro text, starting a new session when there is none.
func (w *Workflow) ensureSession(ctx context.Context, job model.Job, cand model.Candidate, conv model.Conversation, lang string) (preresume.State, string, error) {
	existing, err := w.store.GetPreResumeSessionByConversation(ctx, conv.ID)
	switch {
	case err == nil && !existing.Status.IsTerminal():
		return existing, w.preResume.Catalog().Render(preresume.TemplateIntro, existing.Language, sessionVars(existing)), nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return preresume.State{}, "", fmt.Errorf("loading pre-resume session: %w", err)
	}

	state, intro := w.preResume.StartSession(preresume.StartParams{
		ConversationID:     conv.ID,
		JobID:              job.ID,
		CandidateID:        cand.ID,
		CandidateName:      cand.FirstName(),
		JobTitle:           job.Title,
		ScopeSummary:       scopeSummary(job),
		CoreProfileSummary: cand.Headline,
		Language:           lang,
	})
	if err := w.store.UpsertPreResumeSession(ctx, state); err != nil {
		return preresume.State{}, "", fmt.Errorf("saving pre-resume session: %w", err)
	}
	w.recordSessionEvent(ctx, state, preresume.EventSessionStarted, "", "", intro, nil)
	return state, intro, nil
}

func sessionVars(s preresume.State) preresume.Vars {
	return preresume.Vars{
		Name:               s.CandidateName,
		JobTitle:           s.JobTitle,
		ScopeSummary:       s.ScopeSummary,
		CoreProfileSummary: s.CoreProfileSummary,
	}
}

// scopeSummary is the first line of the job description, shortened.
func scopeSummary(job model.Job) string {
	line := strings.TrimSpace(job.JDText)
	if i := strings.IndexAny(line, "\n"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	runes := []rune(line)
	if len(runes) > maxScopeSummary {
		line = strings.TrimSpace(string(runes[:maxScopeSummary])) + "..."
	}
	return line
}

func (w *Workflow) recordSessionEvent(ctx context.Context, state preresume.State, eventType, intent, inbound, outbound string, details map[string]any) {
	err := w.store.InsertPreResumeEvent(ctx, model.PreResumeEvent{
		SessionID:      state.SessionID,
		ConversationID: state.ConversationID,
		EventType:      eventType,
		Intent:         intent,
		InboundText:    inbound,
		OutboundText:   outbound,
		StateStatus:    string(state.Status),
		Details:        details,
	})
	if err != nil {
		w.logger.Warn("store pre-resume event failed", zap.String("session_id", state.SessionID), zap.String("event", eventType), zap.Error(err))
	}
}

// bindChat attaches a provider chat id to conv. A chat that belonged to an
// older conversation of the same candidate moves over; a chat of another
// candidate is left alone.
func (w *Workflow) bindChat(ctx context.Context, conv model.Conversation, chatID string) model.ChatBinding {
	log := w.convLogger(conv)
	binding, err := w.store.SetConversationExternalChatID(ctx, conv.ID, chatID)
	if err != nil {
		log.Error("bind chat id failed", zap.String("chat_id", chatID), zap.Error(err))
		return model.ChatBinding{Status: "error", ChatID: chatID, ConversationID: conv.ID}
	}

	switch binding.Status {
	case model.BindingRebound:
		log.Info("chat id rebound", zap.String("chat_id", chatID), zap.Int64("previous_conversation_id", binding.PreviousConversationID))
		w.publisher.Publish(ctx, events.Event{
			Type:           events.TypeChatRebound,
			JobID:          conv.JobID,
			CandidateID:    conv.CandidateID,
			ConversationID: conv.ID,
			Details:        map[string]any{"chat_id": chatID, "previous_conversation_id": binding.PreviousConversationID},
		})
	case model.BindingConflict:
		log.Warn("chat id belongs to another candidate", zap.String("chat_id", chatID), zap.Int64("holder_conversation_id", binding.PreviousConversationID))
	}
	return binding
}

type ConnectionPollItem struct {
	ConversationID int64           `json:"conversation_id"`
	CandidateID    int64           `json:"candidate_id"`
	Status         string          `json:"status"`
	Delivery       *PendingOutcome `json:"delivery,omitempty"`
	Error          string          `json:"error,omitempty"`
}

type ConnectionPollResult struct {
	Items        []ConnectionPollItem `json:"items"`
	Checked      int                  `json:"checked"`
	Connected    int                  `json:"connected"`
	Sent         int                  `json:"sent"`
	StillWaiting int                  `json:"still_waiting"`
	Failed       int                  `json:"failed"`
}

// PollPendingConnections checks every conversation waiting for a connection
// and delivers the held message once the candidate accepted. Provider errors
// leave the conversation waiting for the next poll. jobID 0 polls all jobs.
func (w *Workflow) PollPendingConnections(ctx context.Context, jobID int64, limit int) (ConnectionPollResult, error) {
	res := ConnectionPollResult{Items: []ConnectionPollItem{}}
	convs, err := w.store.ListConversations(ctx, store.ConversationFilter{JobID: jobID, Status: model.ConversationWaitingConnection})
	if err != nil {
		return res, fmt.Errorf("listing waiting conversations: %w", err)
	}
	limit = clampLimit(limit, defaultPendingLimit, maxBatchLimit)
	if len(convs) > limit {
		convs = convs[:limit]
	}

	for _, conv := range convs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++
		item := ConnectionPollItem{ConversationID: conv.ID, CandidateID: conv.CandidateID}
		log := w.convLogger(conv)

		cand, err := w.store.GetCandidate(ctx, conv.CandidateID)
		if err != nil {
			res.Failed++
			item.Status, item.Error = "failed", err.Error()
			res.Items = append(res.Items, item)
			continue
		}

		ch, err := w.channelFor(conv)
		if err != nil {
			res.Failed++
			item.Status, item.Error = "failed", err.Error()
			res.Items = append(res.Items, item)
			continue
		}

		conn, err := ch.CheckConnectionStatus(ctx, cand)
		if err != nil {
			log.Warn("check connection status failed", zap.Error(err))
			res.StillWaiting++
			item.Status, item.Error = "still_waiting", err.Error()
			res.Items = append(res.Items, item)
			continue
		}
		if !conn.Connected {
			res.StillWaiting++
			item.Status = "still_waiting"
			res.Items = append(res.Items, item)
			continue
		}

		res.Connected++
		outcome := w.deliverPending(ctx, conv, cand)
		item.Delivery = &outcome
		if outcome.Sent {
			res.Sent++
			item.Status = model.DeliverySent
		} else {
			res.Failed++
			item.Status, item.Error = model.DeliveryFailed, outcome.Reason
		}
		res.Items = append(res.Items, item)
	}
	return res, nil
}

// PendingOutcome is the result of delivering a held outreach message.
type PendingOutcome struct {
	Sent        bool               `json:"sent"`
	Reason      string             `json:"reason,omitempty"`
	Delivery    *model.Delivery    `json:"delivery,omitempty"`
	ChatBinding *model.ChatBinding `json:"chat_binding,omitempty"`
}

// deliverPending sends the outreach message held while the connection was
// pending. The conversation leaves waiting_connection only once the message
// is out.
func (w *Workflow) deliverPending(ctx context.Context, conv model.Conversation, cand model.Candidate) PendingOutcome {
	log := w.convLogger(conv)

	msgs, err := w.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return PendingOutcome{Reason: fmt.Sprintf("listing messages: %v", err)}
	}
	var pending *model.Message
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Direction != model.DirectionOutbound {
			continue
		}
		if m.Meta.DeliveryStatus == model.DeliveryPendingConnection || m.Meta.Type == model.MessageOutreachPendingConnection {
			pending = &msgs[i]
			break
		}
	}
	if pending == nil || strings.TrimSpace(pending.Content) == "" {
		reason := "pending_message_not_found"
		if pending != nil {
			reason = "pending_message_empty"
		}
		if err := w.store.UpdateConversationStatus(ctx, conv.ID, model.ConversationActive); err != nil {
			log.Error("update conversation status failed", zap.Error(err))
		}
		return PendingOutcome{Reason: reason}
	}

	ch, err := w.channelFor(conv)
	if err != nil {
		return PendingOutcome{Reason: err.Error()}
	}
	delivery, err := ch.SendMessage(ctx, cand, pending.Content)
	if err != nil || !delivery.Sent {
		// The conversation keeps waiting with the held message, so the next
		// poll or connection event delivers it.
		delivery = withError(delivery, err)
		log.Warn("pending outreach delivery failed", zap.String("error", delivery.Error), zap.Bool("retryable", retryable(err, delivery)))
		return PendingOutcome{Reason: delivery.Error, Delivery: &delivery}
	}

	if err := w.store.UpdateConversationStatus(ctx, conv.ID, model.ConversationActive); err != nil {
		log.Error("update conversation status failed", zap.Error(err))
	}
	out := PendingOutcome{Sent: true, Delivery: &delivery}
	if delivery.ChatID != "" {
		binding := w.bindChat(ctx, conv, delivery.ChatID)
		out.ChatBinding = &binding
	}

	patch := notes.Notes{Outreach: &notes.OutreachState{State: outreachSentAfterConnection, UpdatedAt: w.timestamp()}}
	if _, err := w.advanceByIDs(ctx, conv.JobID, conv.CandidateID, funnel.StatusOutreachSent, patch); err != nil {
		log.Error("update match after connection failed", zap.Error(err))
	}

	_, err = w.store.AddMessage(ctx, model.Message{
		ConversationID: conv.ID,
		Direction:      model.DirectionOutbound,
		Content:        pending.Content,
		Language:       pending.Language,
		Meta: model.MessageMeta{
			Type:           model.MessageOutreachAfterConnection,
			Auto:           true,
			Delivery:       &delivery,
			DeliveryStatus: model.DeliverySent,
			SessionID:      pending.Meta.SessionID,
			RequestResume:  pending.Meta.RequestResume,
			ExternalChatID: delivery.ChatID,
			ChatBinding:    out.ChatBinding,
		},
	})
	if err != nil {
		log.Error("store outreach message failed", zap.Error(err))
	}

	w.publisher.Publish(ctx, events.Event{
		Type:           events.TypeOutreachResult,
		JobID:          conv.JobID,
		CandidateID:    conv.CandidateID,
		ConversationID: conv.ID,
		To:             model.DeliverySent,
		Details:        map[string]any{"trigger": "connection_accepted"},
	})
	log.Info("pending outreach delivered")
	return out
}

// ConnectionEvent tells that a candidate accepted our connection request.
type ConnectionEvent struct {
	ProviderID string `json:"provider_id" validate:"required"`
}

type ConnectionEventResult struct {
	Processed bool             `json:"processed"`
	Reason    string           `json:"reason,omitempty"`
	Delivered []PendingOutcome `json:"delivered,omitempty"`
}

// ProcessConnectionEvent delivers the held messages of every conversation of
// the candidate that waits for this connection.
func (w *Workflow) ProcessConnectionEvent(ctx context.Context, ev ConnectionEvent) (ConnectionEventResult, error) {
	if err := validatePayload(ev); err != nil {
		return ConnectionEventResult{}, err
	}

	cand, err := w.store.FindCandidateByProviderID(ctx, ev.ProviderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ConnectionEventResult{Reason: "candidate_not_found"}, nil
		}
		return ConnectionEventResult{}, fmt.Errorf("finding candidate: %w", err)
	}

	waiting, err := w.store.ListConversations(ctx, store.ConversationFilter{CandidateID: cand.ID, Status: model.ConversationWaitingConnection})
	if err != nil {
		return ConnectionEventResult{}, fmt.Errorf("listing conversations: %w", err)
	}
	if len(waiting) == 0 {
		if _, err := w.store.GetLatestConversationForCandidate(ctx, cand.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ConnectionEventResult{Reason: "conversation_not_found"}, nil
			}
			return ConnectionEventResult{}, fmt.Errorf("loading conversation: %w", err)
		}
		return ConnectionEventResult{Reason: "conversation_not_waiting_connection"}, nil
	}

	res := ConnectionEventResult{Processed: true}
	for _, conv := range waiting {
		res.Delivered = append(res.Delivered, w.deliverPending(ctx, conv, cand))
	}
	return res, nil
}
