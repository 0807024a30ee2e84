package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/notes"
	"github.com/spigell/tener-recruiter/internal/preresume"
)

type matchKey struct {
	jobID       int64
	candidateID int64
}

// Memory keeps everything in process. It backs tests, the mock provider runs
// and deployments without a database.
type Memory struct {
	mu sync.Mutex

	now func() time.Time

	seq           int64
	jobs          map[int64]model.Job
	candidates    map[int64]model.Candidate
	matches       map[matchKey]model.Match
	conversations map[int64]model.Conversation
	messages      map[int64][]model.Message
	sessions      map[string]preresume.State
	events        []model.PreResumeEvent
	webhooks      map[string]struct{}
	assessments   map[int64]model.JobAssessment
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		now:           time.Now,
		jobs:          make(map[int64]model.Job),
		candidates:    make(map[int64]model.Candidate),
		matches:       make(map[matchKey]model.Match),
		conversations: make(map[int64]model.Conversation),
		messages:      make(map[int64][]model.Message),
		sessions:      make(map[string]preresume.State),
		webhooks:      make(map[string]struct{}),
		assessments:   make(map[int64]model.JobAssessment),
	}
}

func (m *Memory) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *Memory) InsertJob(_ context.Context, job model.Job) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.ID = m.nextID()
	job.CreatedAt = m.now().UTC()
	m.jobs[job.ID] = job
	return job, nil
}

func (m *Memory) GetJob(_ context.Context, id int64) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	return job, nil
}

func (m *Memory) ListJobs(_ context.Context) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpsertCandidate(_ context.Context, c model.Candidate) (model.Candidate, error) {
	if strings.TrimSpace(c.LinkedInID) == "" {
		return model.Candidate{}, fmt.Errorf("candidate without linkedin id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	for id, existing := range m.candidates {
		if existing.LinkedInID != c.LinkedInID {
			continue
		}
		c.ID = id
		c.CreatedAt = existing.CreatedAt
		c.UpdatedAt = now
		m.candidates[id] = c
		return c, nil
	}

	c.ID = m.nextID()
	c.CreatedAt = now
	c.UpdatedAt = now
	m.candidates[c.ID] = c
	return c, nil
}

func (m *Memory) GetCandidate(_ context.Context, id int64) (model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.candidates[id]
	if !ok {
		return model.Candidate{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) GetCandidateByLinkedInID(_ context.Context, linkedInID string) (model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.candidates {
		if c.LinkedInID == linkedInID {
			return c, nil
		}
	}
	return model.Candidate{}, ErrNotFound
}

func (m *Memory) FindCandidateByProviderID(_ context.Context, providerID string) (model.Candidate, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return model.Candidate{}, ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.candidates))
	for id := range m.candidates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		c := m.candidates[id]
		if c.LinkedInID == providerID || c.ProviderID() == providerID {
			return c, nil
		}
	}
	return model.Candidate{}, ErrNotFound
}

func (m *Memory) CreateCandidateMatch(_ context.Context, match model.Match) (model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[match.JobID]; !ok {
		return model.Match{}, fmt.Errorf("job %d: %w", match.JobID, ErrNotFound)
	}
	if _, ok := m.candidates[match.CandidateID]; !ok {
		return model.Match{}, fmt.Errorf("candidate %d: %w", match.CandidateID, ErrNotFound)
	}

	key := matchKey{match.JobID, match.CandidateID}
	now := m.now().UTC()
	if match.Status == "" {
		match.Status = funnel.StatusAdded
	}

	existing, ok := m.matches[key]
	if !ok {
		match.Notes = cloneNotes(match.Notes)
		match.CreatedAt = now
		match.UpdatedAt = now
		m.matches[key] = match
		return match, nil
	}

	existing.Score = match.Score
	existing.Notes = cloneNotes(existing.Notes.Merge(match.Notes))
	if replaceableStatus(existing.Status) {
		existing.Status = match.Status
	}
	existing.UpdatedAt = now
	m.matches[key] = existing
	return existing, nil
}

func (m *Memory) GetCandidateMatch(_ context.Context, jobID, candidateID int64) (model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	match, ok := m.matches[matchKey{jobID, candidateID}]
	if !ok {
		return model.Match{}, ErrNotFound
	}
	match.Notes = cloneNotes(match.Notes)
	return match, nil
}

func (m *Memory) UpdateCandidateMatchStatus(_ context.Context, jobID, candidateID int64, status funnel.Status, patch notes.Notes) (model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := matchKey{jobID, candidateID}
	match, ok := m.matches[key]
	if !ok {
		return model.Match{}, ErrNotFound
	}
	match.Status = status
	match.Notes = cloneNotes(match.Notes.Merge(patch))
	match.UpdatedAt = m.now().UTC()
	m.matches[key] = match
	return match, nil
}

func (m *Memory) UpdateCandidateMatchNotes(_ context.Context, jobID, candidateID int64, patch notes.Notes) (model.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := matchKey{jobID, candidateID}
	match, ok := m.matches[key]
	if !ok {
		return model.Match{}, ErrNotFound
	}
	match.Notes = cloneNotes(match.Notes.Merge(patch))
	match.UpdatedAt = m.now().UTC()
	m.matches[key] = match
	return match, nil
}

func (m *Memory) ListCandidatesForJob(_ context.Context, jobID int64) ([]model.CandidateMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.CandidateMatch, 0)
	for key, match := range m.matches {
		if key.jobID != jobID {
			continue
		}
		match.Notes = cloneNotes(match.Notes)
		out = append(out, model.CandidateMatch{Candidate: m.candidates[key.candidateID], Match: match})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Match.Score != out[j].Match.Score {
			return out[i].Match.Score > out[j].Match.Score
		}
		return out[i].Candidate.ID < out[j].Candidate.ID
	})
	return out, nil
}

func (m *Memory) GetOrCreateConversation(_ context.Context, jobID, candidateID int64, channel model.Channel) (model.Conversation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *model.Conversation
	for _, c := range m.conversations {
		if c.JobID != jobID || c.CandidateID != candidateID || c.Channel != channel {
			continue
		}
		if found == nil || c.ID > found.ID {
			c := c
			found = &c
		}
	}
	if found != nil {
		return *found, false, nil
	}

	now := m.now().UTC()
	conv := model.Conversation{
		ID:          m.nextID(),
		JobID:       jobID,
		CandidateID: candidateID,
		Channel:     channel,
		Status:      model.ConversationActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.conversations[conv.ID] = conv
	return conv, true, nil
}

func (m *Memory) GetConversation(_ context.Context, id int64) (model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return model.Conversation{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) UpdateConversationStatus(_ context.Context, id int64, status model.ConversationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = m.now().UTC()
	m.conversations[id] = c
	return nil
}

func (m *Memory) SetConversationLinkedInAccount(_ context.Context, id int64, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.LinkedInAccountID = accountID
	c.UpdatedAt = m.now().UTC()
	m.conversations[id] = c
	return nil
}

func (m *Memory) SetConversationExternalChatID(_ context.Context, id int64, chatID string) (model.ChatBinding, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return model.ChatBinding{Status: model.BindingEmptyChatID, ConversationID: id}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		return model.ChatBinding{Status: model.BindingNoConversation, ChatID: chatID, ConversationID: id}, nil
	}

	var holder *model.Conversation
	for _, c := range m.conversations {
		if c.ID != id && c.ExternalChatID == chatID {
			c := c
			holder = &c
			break
		}
	}

	binding := bindChat(conv, holder, chatID)
	if binding.Status == model.BindingConflict || binding.Status == model.BindingUnchanged {
		return binding, nil
	}

	now := m.now().UTC()
	if holder != nil {
		holder.ExternalChatID = ""
		holder.UpdatedAt = now
		m.conversations[holder.ID] = *holder
	}
	conv.ExternalChatID = chatID
	conv.UpdatedAt = now
	m.conversations[id] = conv
	return binding, nil
}

func (m *Memory) GetConversationByExternalChatID(_ context.Context, chatID string) (model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if chatID == "" {
		return model.Conversation{}, ErrNotFound
	}
	for _, c := range m.conversations {
		if c.ExternalChatID == chatID {
			return c, nil
		}
	}
	return model.Conversation{}, ErrNotFound
}

func (m *Memory) GetLatestConversationForCandidate(_ context.Context, candidateID int64) (model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *model.Conversation
	for _, c := range m.conversations {
		if c.CandidateID != candidateID {
			continue
		}
		if latest == nil || c.UpdatedAt.After(latest.UpdatedAt) ||
			(c.UpdatedAt.Equal(latest.UpdatedAt) && c.ID > latest.ID) {
			c := c
			latest = &c
		}
	}
	if latest == nil {
		return model.Conversation{}, ErrNotFound
	}
	return *latest, nil
}

func (m *Memory) ListConversations(_ context.Context, f ConversationFilter) ([]model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Conversation, 0)
	for _, c := range m.conversations {
		if f.JobID != 0 && c.JobID != f.JobID {
			continue
		}
		if f.CandidateID != 0 && c.CandidateID != f.CandidateID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Channel != "" && c.Channel != f.Channel {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AddMessage(_ context.Context, msg model.Message) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[msg.ConversationID]
	if !ok {
		return model.Message{}, fmt.Errorf("conversation %d: %w", msg.ConversationID, ErrNotFound)
	}

	now := m.now().UTC()
	msg.ID = m.nextID()
	msg.CreatedAt = now
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)

	conv.UpdatedAt = now
	m.conversations[conv.ID] = conv
	return msg, nil
}

func (m *Memory) ListMessages(_ context.Context, conversationID int64) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.messages[conversationID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *Memory) GetPreResumeSession(_ context.Context, sessionID string) (preresume.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return preresume.State{}, ErrNotFound
	}
	return cloneState(s), nil
}

func (m *Memory) GetPreResumeSessionByConversation(_ context.Context, conversationID int64) (preresume.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.ConversationID == conversationID {
			return cloneState(s), nil
		}
	}
	return preresume.State{}, ErrNotFound
}

func (m *Memory) UpsertPreResumeSession(_ context.Context, s preresume.State) error {
	if s.SessionID == "" {
		return fmt.Errorf("pre-resume session without id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	if existing, ok := m.sessions[s.SessionID]; ok {
		s.CreatedAt = existing.CreatedAt
	} else if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.sessions[s.SessionID] = cloneState(s)
	return nil
}

func (m *Memory) ListDuePreResumeSessions(_ context.Context, jobID int64, now time.Time, limit int) ([]preresume.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]preresume.State, 0)
	for _, s := range m.sessions {
		if jobID != 0 && s.JobID != jobID {
			continue
		}
		if s.Status.IsTerminal() || s.NextFollowupAt == nil || s.NextFollowupAt.After(now) {
			continue
		}
		out = append(out, cloneState(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextFollowupAt.Equal(*out[j].NextFollowupAt) {
			return out[i].NextFollowupAt.Before(*out[j].NextFollowupAt)
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) InsertPreResumeEvent(_ context.Context, ev model.PreResumeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.ID = m.nextID()
	ev.CreatedAt = m.now().UTC()
	m.events = append(m.events, ev)
	return nil
}

// PreResumeEvents returns the audit log of a session.
func (m *Memory) PreResumeEvents(sessionID string) []model.PreResumeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.PreResumeEvent, 0)
	for _, ev := range m.events {
		if ev.SessionID == sessionID {
			out = append(out, ev)
		}
	}
	return out
}

func (m *Memory) RecordWebhookEvent(_ context.Context, key, _ string, _ map[string]any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.webhooks[key]; ok {
		return false, nil
	}
	m.webhooks[key] = struct{}{}
	return true, nil
}

func (m *Memory) GetJobAssessment(_ context.Context, jobID int64) (model.JobAssessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assessments[jobID]
	if !ok {
		return model.JobAssessment{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) SaveJobAssessment(_ context.Context, a model.JobAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.PreparedAt.IsZero() {
		a.PreparedAt = m.now().UTC()
	}
	m.assessments[a.JobID] = a
	return nil
}

// cloneNotes detaches the stored notes from the caller's pointers by going
// through the same encoding the database uses.
func cloneNotes(n notes.Notes) notes.Notes {
	if n.IsZero() {
		return notes.Notes{}
	}
	data, err := json.Marshal(n)
	if err != nil {
		return n
	}
	out, err := notes.Parse(data)
	if err != nil {
		return n
	}
	return out
}

func cloneState(s preresume.State) preresume.State {
	if s.NextFollowupAt != nil {
		next := *s.NextFollowupAt
		s.NextFollowupAt = &next
	}
	if s.ResumeLinks != nil {
		s.ResumeLinks = append([]string(nil), s.ResumeLinks...)
	}
	return s
}
