package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/tener-recruiter/internal/ai"
	"github.com/spigell/tener-recruiter/internal/events"
	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/language"
	"github.com/spigell/tener-recruiter/internal/logger"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/notes"
	"github.com/spigell/tener-recruiter/internal/preresume"
	"github.com/spigell/tener-recruiter/internal/provider"
	"github.com/spigell/tener-recruiter/internal/store"
	"github.com/spigell/tener-recruiter/internal/utils"
)

// Reply modes.
const (
	ModePreResume = "pre_resume"
	ModeFAQ       = "faq"
)

const (
	pollSource          = "unipile_poll"
	defaultPollLimit    = 200
	defaultPerChatLimit = 20
	maxHistoryTurns     = 10
	maxAttachments      = 8
	logTextLimit        = 200
)

var (
	inboundDirections  = map[string]bool{"inbound": true, "incoming": true, "received": true, "from_them": true}
	outboundDirections = map[string]bool{"outbound": true, "sent": true, "from_me": true, "self": true}
)

type InboundResult struct {
	Processed      bool             `json:"processed"`
	Reason         string           `json:"reason,omitempty"`
	ConversationID int64            `json:"conversation_id,omitempty"`
	Mode           string           `json:"mode,omitempty"`
	Language       string           `json:"language,omitempty"`
	Intent         string           `json:"intent,omitempty"`
	Reply          string           `json:"reply,omitempty"`
	State          *preresume.State `json:"state,omitempty"`
	Interview      *InterviewInvite `json:"interview,omitempty"`
	Delivery       *model.Delivery  `json:"delivery,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// ProcessInboundMessage stores a candidate message and answers it: through
// the pre-resume session when the conversation has one, with the FAQ answers
// otherwise. Match status only moves forward.
func (w *Workflow) ProcessInboundMessage(ctx context.Context, conversationID int64, text string) (InboundResult, error) {
	text = strings.TrimSpace(text)
	if conversationID <= 0 || text == "" {
		return InboundResult{}, fmt.Errorf("conversation %d with empty text: %w", conversationID, ErrInvalidArgument)
	}

	conv, err := w.store.GetConversation(ctx, conversationID)
	if err != nil {
		return InboundResult{}, fmt.Errorf("loading conversation %d: %w", conversationID, err)
	}
	job, err := w.store.GetJob(ctx, conv.JobID)
	if err != nil {
		return InboundResult{}, fmt.Errorf("loading job %d: %w", conv.JobID, err)
	}
	cand, err := w.store.GetCandidate(ctx, conv.CandidateID)
	if err != nil {
		return InboundResult{}, fmt.Errorf("loading candidate %d: %w", conv.CandidateID, err)
	}
	match, err := w.store.GetCandidateMatch(ctx, conv.JobID, conv.CandidateID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return InboundResult{}, fmt.Errorf("loading match: %w", err)
	}
	history, err := w.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return InboundResult{}, fmt.Errorf("listing messages: %w", err)
	}

	log := w.convLogger(conv)
	log.Debug("inbound message", zap.String("text", utils.TruncateForLog(text, logTextLimit)))

	detected := language.Detect(text)
	if _, err := w.store.AddMessage(ctx, model.Message{
		ConversationID: conv.ID,
		Direction:      model.DirectionInbound,
		Content:        text,
		Language:       detected,
		Meta:           model.MessageMeta{Type: model.MessageCandidate},
	}); err != nil {
		return InboundResult{}, fmt.Errorf("storing inbound message: %w", err)
	}

	state, err := w.store.GetPreResumeSessionByConversation(ctx, conv.ID)
	var res InboundResult
	switch {
	case err == nil:
		res, err = w.replyPreResume(ctx, job, cand, conv, match, state, text, history)
	case errors.Is(err, store.ErrNotFound):
		res, err = w.replyFAQ(ctx, job, cand, conv, text, detected, history)
	default:
		err = fmt.Errorf("loading pre-resume session: %w", err)
	}
	if err != nil {
		return InboundResult{}, err
	}

	res.Processed = true
	res.ConversationID = conv.ID
	w.publisher.Publish(ctx, events.Event{
		Type:           events.TypeInboundProcessed,
		JobID:          conv.JobID,
		CandidateID:    conv.CandidateID,
		ConversationID: conv.ID,
		Details:        map[string]any{"mode": res.Mode, "intent": res.Intent},
	})
	log.Info("inbound processed", zap.String("mode", res.Mode), zap.String("intent", res.Intent))
	return res, nil
}

func (w *Workflow) replyPreResume(ctx context.Context, job model.Job, cand model.Candidate, conv model.Conversation, match model.Match, state preresume.State, text string, history []model.Message) (InboundResult, error) {
	log := w.convLogger(conv)
	outcome := w.preResume.HandleInbound(state, text)
	state = outcome.State
	res := InboundResult{Mode: ModePreResume, Language: state.Language, Intent: string(outcome.Intent)}

	if outcome.Event == preresume.EventIgnoredTerminal {
		w.recordSessionEvent(ctx, state, outcome.Event, "", text, "", nil)
		res.State = &state
		return res, nil
	}

	outbound := outcome.Outbound
	if isTopicIntent(outcome.Intent) {
		if generated := w.generateReply(ctx, job, cand, state.Language, string(outcome.Intent), text, history); generated != "" {
			cta := w.preResume.Catalog().Render(preresume.TemplateResumeCTA, state.Language, sessionVars(state))
			outbound = strings.TrimSpace(generated + "\n\n" + cta)
		}
	}
	if w.interview != nil {
		hasInterview := match.Notes.Interview != nil && match.Notes.Interview.SessionID != ""
		outbound = w.preResume.AppendOptInPrompt(&state, outbound, hasInterview)
	}
	if err := w.store.UpsertPreResumeSession(ctx, state); err != nil {
		return res, fmt.Errorf("saving pre-resume session: %w", err)
	}

	if w.interview != nil && (outcome.Intent == preresume.IntentPreVettingOptIn || state.Status == preresume.StatusResumeReceived) {
		invite := w.inviteToInterview(ctx, job, cand, conv, state.Language)
		res.Interview = &invite
		if invite.Started {
			outbound = invite.Message
			res.Delivery = invite.Delivery
		}
	}
	w.recordSessionEvent(ctx, state, preresume.EventInbound, string(outcome.Intent), text, outbound, nil)

	if (res.Interview == nil || !res.Interview.Started) && outbound != "" {
		delivery := w.sendAuto(ctx, conv, cand, outbound, state.Language, model.MessageMeta{
			Type:      model.MessagePreResumeReply,
			Intent:    string(outcome.Intent),
			SessionID: state.SessionID,
		})
		res.Delivery = &delivery
	}

	pointer := &notes.PreResumePointer{SessionID: state.SessionID, Status: string(state.Status)}
	to := funnel.StatusInDialogue
	switch state.Status {
	case preresume.StatusResumeReceived:
		to = funnel.StatusResumeReceived
		pointer.ResumeReceivedAt = w.timestamp()
	case preresume.StatusNotInterested:
		to = funnel.StatusNotInterested
	}
	if _, err := w.advanceByIDs(ctx, conv.JobID, conv.CandidateID, to, notes.Notes{PreResume: pointer}); err != nil {
		log.Error("update match after inbound failed", zap.Error(err))
	}

	res.Reply = outbound
	res.State = &state
	return res, nil
}

func (w *Workflow) replyFAQ(ctx context.Context, job model.Job, cand model.Candidate, conv model.Conversation, text, lang string, history []model.Message) (InboundResult, error) {
	intent := faqIntent(text)
	reply := renderMessage(faqAnswers[intent], lang, messageVars{Name: cand.FirstName(), JobTitle: job.Title})
	if generated := w.generateReply(ctx, job, cand, lang, string(intent), text, history); generated != "" {
		reply = generated
	}

	delivery := w.sendAuto(ctx, conv, cand, reply, lang, model.MessageMeta{
		Type:   model.MessageFAQReply,
		Intent: string(intent),
	})
	if _, err := w.advanceByIDs(ctx, conv.JobID, conv.CandidateID, funnel.StatusInDialogue, notes.Notes{}); err != nil {
		w.convLogger(conv).Error("update match after inbound failed", zap.Error(err))
	}

	return InboundResult{
		Mode:     ModeFAQ,
		Language: lang,
		Intent:   string(intent),
		Reply:    reply,
		Delivery: &delivery,
	}, nil
}

func isTopicIntent(intent preresume.Intent) bool {
	switch intent {
	case preresume.IntentSalary, preresume.IntentStack, preresume.IntentTimeline,
		preresume.IntentSendJDFirst, preresume.IntentDefault:
		return true
	}
	return false
}

// generateReply asks the reply model for an answer. Empty means use the
// template.
func (w *Workflow) generateReply(ctx context.Context, job model.Job, cand model.Candidate, lang, intent, text string, history []model.Message) string {
	if w.replier == nil {
		return ""
	}
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	turns := make([]ai.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, ai.Turn{Inbound: m.Direction == model.DirectionInbound, Content: m.Content})
	}

	reply, err := w.replier.Reply(ctx, ai.ReplyRequest{
		Language:       lang,
		Intent:         intent,
		JobTitle:       job.Title,
		JobDescription: job.JDText,
		CandidateName:  cand.FirstName(),
		InboundText:    text,
		History:        turns,
	})
	if err != nil {
		w.logger.Warn("reply generation failed, using template", zap.Int64(logger.FieldCandidateID, cand.ID), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(reply)
}

// sendAuto delivers an automatic message and appends it to the log.
func (w *Workflow) sendAuto(ctx context.Context, conv model.Conversation, cand model.Candidate, text, lang string, meta model.MessageMeta) model.Delivery {
	d, _ := w.sendAutoErr(ctx, conv, cand, text, lang, meta)
	return d
}

// sendAutoErr is sendAuto that also returns the delivery error.
func (w *Workflow) sendAutoErr(ctx context.Context, conv model.Conversation, cand model.Candidate, text, lang string, meta model.MessageMeta) (model.Delivery, error) {
	log := w.convLogger(conv)

	var delivery model.Delivery
	ch, err := w.channelFor(conv)
	if err == nil {
		delivery, err = ch.SendMessage(ctx, cand, text)
	}
	delivery = withError(delivery, err)
	if err != nil {
		log.Warn("auto message delivery failed", zap.String("type", meta.Type), zap.Error(err))
	}

	meta.Auto = true
	meta.Delivery = &delivery
	meta.DeliveryStatus = model.DeliverySent
	if !delivery.Sent {
		meta.DeliveryStatus = model.DeliveryFailed
	}
	if _, err := w.store.AddMessage(ctx, model.Message{
		ConversationID: conv.ID,
		Direction:      model.DirectionOutbound,
		Content:        text,
		Language:       lang,
		Meta:           meta,
	}); err != nil {
		log.Error("store outbound message failed", zap.String("type", meta.Type), zap.Error(err))
	}
	return delivery, err
}

// ProviderInbound is a message reported by the messaging provider.
type ProviderInbound struct {
	ChatID           string `json:"chat_id" validate:"required_without=SenderProviderID"`
	SenderProviderID string `json:"sender_provider_id" validate:"required_without=ChatID"`
	MessageID        string `json:"message_id"`
	Text             string `json:"text" validate:"required"`
}

// ProcessProviderInboundMessage routes a provider message to its
// conversation: by chat id first, then by the sender's most recent
// conversation. Empty, unroutable or failing messages are reported, never
// returned as errors.
func (w *Workflow) ProcessProviderInboundMessage(ctx context.Context, msg ProviderInbound) (InboundResult, error) {
	msg.Text = strings.TrimSpace(msg.Text)
	if err := validatePayload(msg); err != nil {
		reason := "missing_chat"
		if msg.Text == "" {
			reason = "empty_text"
		}
		w.logger.Info("inbound message ignored", zap.String("reason", reason), zap.String("chat_id", msg.ChatID))
		return InboundResult{Reason: reason, Error: err.Error()}, nil
	}

	conv, found, err := w.routeInbound(ctx, msg)
	if err != nil {
		w.logger.Error("route inbound message failed", zap.String("chat_id", msg.ChatID), zap.Error(err))
		return InboundResult{Reason: "routing_failed", Error: err.Error()}, nil
	}
	if !found {
		w.logger.Info("inbound message without conversation", zap.String("chat_id", msg.ChatID), zap.String("sender", msg.SenderProviderID))
		return InboundResult{Reason: "conversation_not_found"}, nil
	}

	res, err := w.ProcessInboundMessage(ctx, conv.ID, msg.Text)
	if err != nil {
		w.convLogger(conv).Error("process inbound message failed", zap.Error(err))
		return InboundResult{ConversationID: conv.ID, Reason: "processing_failed", Error: err.Error()}, nil
	}
	return res, nil
}

func (w *Workflow) routeInbound(ctx context.Context, msg ProviderInbound) (model.Conversation, bool, error) {
	if msg.ChatID != "" {
		conv, err := w.store.GetConversationByExternalChatID(ctx, msg.ChatID)
		if err == nil {
			return conv, true, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return model.Conversation{}, false, err
		}
	}
	if msg.SenderProviderID == "" {
		return model.Conversation{}, false, nil
	}

	cand, err := w.store.FindCandidateByProviderID(ctx, msg.SenderProviderID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Conversation{}, false, nil
	}
	if err != nil {
		return model.Conversation{}, false, err
	}
	conv, err := w.store.GetLatestConversationForCandidate(ctx, cand.ID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Conversation{}, false, nil
	}
	if err != nil {
		return model.Conversation{}, false, err
	}
	if msg.ChatID != "" && conv.ExternalChatID == "" {
		w.bindChat(ctx, conv, msg.ChatID)
	}
	return conv, true, nil
}

type InboundPollResult struct {
	ConversationsChecked int    `json:"conversations_checked"`
	MessagesScanned      int    `json:"messages_scanned"`
	Processed            int    `json:"processed"`
	Duplicates           int    `json:"duplicates"`
	Ignored              int    `json:"ignored"`
	Errors               int    `json:"errors"`
	Reason               string `json:"reason,omitempty"`
}

// PollProviderInbound reads recent chat history of every bound conversation
// and processes candidate messages that were not seen yet. Messages are
// applied in chat order. jobID 0 polls all jobs.
func (w *Workflow) PollProviderInbound(ctx context.Context, jobID int64, limit, perChat int) (InboundPollResult, error) {
	var res InboundPollResult
	fetcher, ok := w.channel.(provider.InboundFetcher)
	if !ok {
		res.Reason = "channel_cannot_fetch_messages"
		return res, nil
	}

	convs, err := w.store.ListConversations(ctx, store.ConversationFilter{JobID: jobID, Channel: model.ChannelLinkedIn})
	if err != nil {
		return res, fmt.Errorf("listing conversations: %w", err)
	}
	limit = clampLimit(limit, defaultPollLimit, maxBatchLimit)
	perChat = clampLimit(perChat, defaultPerChatLimit, maxPerChatLimit)

	for _, conv := range convs {
		if res.ConversationsChecked >= limit {
			break
		}
		if conv.ExternalChatID == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.ConversationsChecked++
		log := w.convLogger(conv)

		cand, err := w.store.GetCandidate(ctx, conv.CandidateID)
		if err != nil {
			res.Errors++
			log.Warn("load candidate failed", zap.Error(err))
			continue
		}
		msgs, err := fetcher.FetchChatMessages(ctx, conv.ExternalChatID, perChat)
		if err != nil {
			res.Errors++
			log.Warn("fetch chat messages failed", zap.Error(err))
			continue
		}

		for _, m := range msgs {
			res.MessagesScanned++
			if !isInboundMessage(m, cand) {
				res.Ignored++
				continue
			}
			text := strings.TrimSpace(m.Text)
			if text == "" {
				text = attachmentText(m)
			}
			if text == "" {
				res.Ignored++
				continue
			}

			key := pollDedupeKey(conv.ExternalChatID, m, text)
			fresh, err := w.deduper.RecordWebhookEvent(ctx, key, pollSource, map[string]any{
				"chat_id":    conv.ExternalChatID,
				"message_id": m.ID,
				"sender_id":  m.SenderID,
				"created_at": m.CreatedAt,
			})
			if err != nil {
				res.Errors++
				log.Warn("record inbound event failed", zap.String("key", key), zap.Error(err))
				continue
			}
			if !fresh {
				res.Duplicates++
				continue
			}

			if _, err := w.ProcessInboundMessage(ctx, conv.ID, text); err != nil {
				res.Errors++
				log.Error("process polled message failed", zap.String("message_id", m.ID), zap.Error(err))
				continue
			}
			res.Processed++
		}
	}
	return res, nil
}

func isInboundMessage(m provider.ChatMessage, cand model.Candidate) bool {
	dir := strings.ToLower(strings.TrimSpace(m.Direction))
	if inboundDirections[dir] {
		return true
	}
	if outboundDirections[dir] {
		return false
	}
	if m.IsSender != nil {
		return !*m.IsSender
	}
	if m.SenderID == "" {
		return false
	}
	return m.SenderID == cand.ProviderID() || m.SenderID == cand.LinkedInID
}

// attachmentText describes attachments of a message without text, so a CV
// sent as a file still reaches the classifier.
func attachmentText(m provider.ChatMessage) string {
	lines := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		if len(lines) >= maxAttachments {
			break
		}
		line := strings.TrimSpace(strings.TrimSpace(a.Name) + " " + strings.TrimSpace(a.URL))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func pollDedupeKey(chatID string, m provider.ChatMessage, text string) string {
	tail := strings.TrimSpace(m.ID)
	if tail == "" {
		sum := sha256.Sum256([]byte(chatID + "|" + m.SenderID + "|" + m.CreatedAt + "|" + text))
		tail = hex.EncodeToString(sum[:])
	}
	return "poll-unipile:" + chatID + ":" + tail
}
