package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/notes"
	"github.com/spigell/tener-recruiter/internal/preresume"
)

//go:embed schema.sql
var schemaSQL string

// Postgres is the pgx backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates missing tables. It never alters existing ones.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const jobColumns = `id, title, jd_text, location, preferred_languages, seniority, created_at`

func scanJob(row rowScanner) (model.Job, error) {
	var j model.Job
	err := row.Scan(&j.ID, &j.Title, &j.JDText, &j.Location, &j.PreferredLanguages, &j.Seniority, &j.CreatedAt)
	return j, err
}

func (p *Postgres) InsertJob(ctx context.Context, job model.Job) (model.Job, error) {
	langs := job.PreferredLanguages
	if langs == nil {
		langs = []string{}
	}
	row := p.pool.QueryRow(ctx,
		`INSERT INTO jobs (title, jd_text, location, preferred_languages, seniority)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+jobColumns,
		job.Title, job.JDText, job.Location, langs, job.Seniority,
	)
	out, err := scanJob(row)
	if err != nil {
		return model.Job{}, fmt.Errorf("inserting job: %w", err)
	}
	return out, nil
}

func (p *Postgres) GetJob(ctx context.Context, id int64) (model.Job, error) {
	job, err := scanJob(p.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		return model.Job{}, notFound(err)
	}
	return job, nil
}

func (p *Postgres) ListJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]model.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

const candidateColumns = `id, linkedin_id, full_name, headline, location, languages, skills,
	years_experience, raw, created_at, updated_at`

func scanCandidate(row rowScanner) (model.Candidate, error) {
	var (
		c   model.Candidate
		raw []byte
	)
	err := row.Scan(&c.ID, &c.LinkedInID, &c.FullName, &c.Headline, &c.Location, &c.Languages, &c.Skills,
		&c.YearsExperience, &raw, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.Raw); err != nil {
			return c, fmt.Errorf("decoding candidate raw: %w", err)
		}
	}
	return c, nil
}

func (p *Postgres) UpsertCandidate(ctx context.Context, c model.Candidate) (model.Candidate, error) {
	if strings.TrimSpace(c.LinkedInID) == "" {
		return model.Candidate{}, fmt.Errorf("candidate without linkedin id")
	}
	raw, err := json.Marshal(orEmpty(c.Raw))
	if err != nil {
		return model.Candidate{}, fmt.Errorf("encoding candidate raw: %w", err)
	}

	row := p.pool.QueryRow(ctx,
		`INSERT INTO candidates (linkedin_id, full_name, headline, location, languages, skills, years_experience, raw)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (linkedin_id) DO UPDATE SET
		   full_name = EXCLUDED.full_name,
		   headline = EXCLUDED.headline,
		   location = EXCLUDED.location,
		   languages = EXCLUDED.languages,
		   skills = EXCLUDED.skills,
		   years_experience = EXCLUDED.years_experience,
		   raw = EXCLUDED.raw,
		   updated_at = NOW()
		 RETURNING `+candidateColumns,
		c.LinkedInID, c.FullName, c.Headline, c.Location, nonNil(c.Languages), nonNil(c.Skills), c.YearsExperience, raw,
	)
	out, err := scanCandidate(row)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("upserting candidate: %w", err)
	}
	return out, nil
}

func (p *Postgres) GetCandidate(ctx context.Context, id int64) (model.Candidate, error) {
	c, err := scanCandidate(p.pool.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id))
	if err != nil {
		return model.Candidate{}, notFound(err)
	}
	return c, nil
}

func (p *Postgres) GetCandidateByLinkedInID(ctx context.Context, linkedInID string) (model.Candidate, error) {
	c, err := scanCandidate(p.pool.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE linkedin_id = $1`, linkedInID))
	if err != nil {
		return model.Candidate{}, notFound(err)
	}
	return c, nil
}

func (p *Postgres) FindCandidateByProviderID(ctx context.Context, providerID string) (model.Candidate, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return model.Candidate{}, ErrNotFound
	}
	c, err := scanCandidate(p.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM candidates
		 WHERE linkedin_id = $1
		    OR raw->>'attendee_provider_id' = $1
		    OR raw->>'provider_id' = $1
		    OR raw->>'unipile_profile_id' = $1
		 ORDER BY id
		 LIMIT 1`, providerID))
	if err != nil {
		return model.Candidate{}, notFound(err)
	}
	return c, nil
}

const matchColumns = `job_id, candidate_id, score, status, verification_notes, created_at, updated_at`

func scanMatch(row rowScanner) (model.Match, error) {
	var (
		m   model.Match
		raw []byte
	)
	if err := row.Scan(&m.JobID, &m.CandidateID, &m.Score, &m.Status, &raw, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return m, err
	}
	n, err := notes.Parse(raw)
	if err != nil {
		return m, err
	}
	m.Notes = n
	return m, nil
}

func (p *Postgres) CreateCandidateMatch(ctx context.Context, m model.Match) (model.Match, error) {
	if m.Status == "" {
		m.Status = funnel.StatusAdded
	}
	raw, err := json.Marshal(m.Notes)
	if err != nil {
		return model.Match{}, fmt.Errorf("encoding notes: %w", err)
	}

	row := p.pool.QueryRow(ctx,
		`INSERT INTO candidate_job_matches (job_id, candidate_id, score, status, verification_notes)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (job_id, candidate_id) DO UPDATE SET
		   score = EXCLUDED.score,
		   status = CASE WHEN candidate_job_matches.status IN ('added', 'verified', 'needs_resume', 'rejected')
		                 THEN EXCLUDED.status ELSE candidate_job_matches.status END,
		   verification_notes = candidate_job_matches.verification_notes || EXCLUDED.verification_notes,
		   updated_at = NOW()
		 RETURNING `+matchColumns,
		m.JobID, m.CandidateID, m.Score, string(m.Status), raw,
	)
	out, err := scanMatch(row)
	if err != nil {
		return model.Match{}, fmt.Errorf("creating match: %w", err)
	}
	return out, nil
}

func (p *Postgres) GetCandidateMatch(ctx context.Context, jobID, candidateID int64) (model.Match, error) {
	m, err := scanMatch(p.pool.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM candidate_job_matches WHERE job_id = $1 AND candidate_id = $2`,
		jobID, candidateID))
	if err != nil {
		return model.Match{}, notFound(err)
	}
	return m, nil
}

// UpdateCandidateMatchStatus merges the patch kinds at the top level of the
// JSONB document, so kinds written by others survive.
func (p *Postgres) UpdateCandidateMatchStatus(ctx context.Context, jobID, candidateID int64, status funnel.Status, patch notes.Notes) (model.Match, error) {
	raw, err := json.Marshal(patch)
	if err != nil {
		return model.Match{}, fmt.Errorf("encoding notes: %w", err)
	}
	m, err := scanMatch(p.pool.QueryRow(ctx,
		`WITH upd AS (
		   UPDATE candidate_job_matches
		   SET status = $3, verification_notes = verification_notes || $4::jsonb, updated_at = NOW()
		   WHERE job_id = $1 AND candidate_id = $2
		   RETURNING *
		 )
		 SELECT `+matchColumns+` FROM upd`,
		jobID, candidateID, string(status), raw))
	if err != nil {
		return model.Match{}, notFound(err)
	}
	return m, nil
}

func (p *Postgres) UpdateCandidateMatchNotes(ctx context.Context, jobID, candidateID int64, patch notes.Notes) (model.Match, error) {
	raw, err := json.Marshal(patch)
	if err != nil {
		return model.Match{}, fmt.Errorf("encoding notes: %w", err)
	}
	m, err := scanMatch(p.pool.QueryRow(ctx,
		`WITH upd AS (
		   UPDATE candidate_job_matches
		   SET verification_notes = verification_notes || $3::jsonb, updated_at = NOW()
		   WHERE job_id = $1 AND candidate_id = $2
		   RETURNING *
		 )
		 SELECT `+matchColumns+` FROM upd`,
		jobID, candidateID, raw))
	if err != nil {
		return model.Match{}, notFound(err)
	}
	return m, nil
}

func (p *Postgres) ListCandidatesForJob(ctx context.Context, jobID int64) ([]model.CandidateMatch, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT c.id, c.linkedin_id, c.full_name, c.headline, c.location, c.languages, c.skills,
		        c.years_experience, c.raw, c.created_at, c.updated_at,
		        m.job_id, m.candidate_id, m.score, m.status, m.verification_notes, m.created_at, m.updated_at
		 FROM candidate_job_matches m
		 JOIN candidates c ON c.id = m.candidate_id
		 WHERE m.job_id = $1
		 ORDER BY m.score DESC, c.id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing candidates for job %d: %w", jobID, err)
	}
	defer rows.Close()

	out := make([]model.CandidateMatch, 0)
	for rows.Next() {
		var (
			cm       model.CandidateMatch
			raw, nts []byte
		)
		c, m := &cm.Candidate, &cm.Match
		if err := rows.Scan(
			&c.ID, &c.LinkedInID, &c.FullName, &c.Headline, &c.Location, &c.Languages, &c.Skills,
			&c.YearsExperience, &raw, &c.CreatedAt, &c.UpdatedAt,
			&m.JobID, &m.CandidateID, &m.Score, &m.Status, &nts, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning candidate match: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &c.Raw); err != nil {
				return nil, fmt.Errorf("decoding candidate raw: %w", err)
			}
		}
		if m.Notes, err = notes.Parse(nts); err != nil {
			return nil, err
		}
		out = append(out, cm)
	}
	return out, rows.Err()
}

const conversationColumns = `id, job_id, candidate_id, channel, COALESCE(external_chat_id, ''),
	COALESCE(linkedin_account_id, ''), status, created_at, updated_at`

func scanConversation(row rowScanner) (model.Conversation, error) {
	var c model.Conversation
	err := row.Scan(&c.ID, &c.JobID, &c.CandidateID, &c.Channel, &c.ExternalChatID,
		&c.LinkedInAccountID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (p *Postgres) GetOrCreateConversation(ctx context.Context, jobID, candidateID int64, channel model.Channel) (model.Conversation, bool, error) {
	c, err := scanConversation(p.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE job_id = $1 AND candidate_id = $2 AND channel = $3
		 ORDER BY id DESC LIMIT 1`, jobID, candidateID, string(channel)))
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Conversation{}, false, fmt.Errorf("looking up conversation: %w", err)
	}

	c, err = scanConversation(p.pool.QueryRow(ctx,
		`INSERT INTO conversations (job_id, candidate_id, channel, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+conversationColumns,
		jobID, candidateID, string(channel), string(model.ConversationActive)))
	if err != nil {
		return model.Conversation{}, false, fmt.Errorf("creating conversation: %w", err)
	}
	return c, true, nil
}

func (p *Postgres) GetConversation(ctx context.Context, id int64) (model.Conversation, error) {
	c, err := scanConversation(p.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil {
		return model.Conversation{}, notFound(err)
	}
	return c, nil
}

func (p *Postgres) exec1(ctx context.Context, sql string, args ...any) error {
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateConversationStatus(ctx context.Context, id int64, status model.ConversationStatus) error {
	return p.exec1(ctx, `UPDATE conversations SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
}

func (p *Postgres) SetConversationLinkedInAccount(ctx context.Context, id int64, accountID string) error {
	return p.exec1(ctx, `UPDATE conversations SET linkedin_account_id = $2, updated_at = NOW() WHERE id = $1`, id, accountID)
}

func (p *Postgres) SetConversationExternalChatID(ctx context.Context, id int64, chatID string) (model.ChatBinding, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return model.ChatBinding{Status: model.BindingEmptyChatID, ConversationID: id}, nil
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.ChatBinding{}, fmt.Errorf("starting rebind: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	conv, err := scanConversation(tx.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ChatBinding{Status: model.BindingNoConversation, ChatID: chatID, ConversationID: id}, nil
	}
	if err != nil {
		return model.ChatBinding{}, fmt.Errorf("locking conversation %d: %w", id, err)
	}

	var holder *model.Conversation
	h, err := scanConversation(tx.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE external_chat_id = $1 AND id <> $2 FOR UPDATE`, chatID, id))
	switch {
	case err == nil:
		holder = &h
	case !errors.Is(err, pgx.ErrNoRows):
		return model.ChatBinding{}, fmt.Errorf("locking chat holder: %w", err)
	}

	binding := bindChat(conv, holder, chatID)
	if binding.Status == model.BindingConflict || binding.Status == model.BindingUnchanged {
		return binding, nil
	}

	// One statement moves the id so the partial unique index never sees two
	// holders.
	if _, err := tx.Exec(ctx,
		`UPDATE conversations
		 SET external_chat_id = CASE WHEN id = $1 THEN $2 ELSE NULL END, updated_at = NOW()
		 WHERE id = $1 OR external_chat_id = $2`, id, chatID); err != nil {
		return model.ChatBinding{}, fmt.Errorf("binding chat %s: %w", chatID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.ChatBinding{}, fmt.Errorf("committing rebind: %w", err)
	}
	return binding, nil
}

func (p *Postgres) GetConversationByExternalChatID(ctx context.Context, chatID string) (model.Conversation, error) {
	if chatID == "" {
		return model.Conversation{}, ErrNotFound
	}
	c, err := scanConversation(p.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE external_chat_id = $1`, chatID))
	if err != nil {
		return model.Conversation{}, notFound(err)
	}
	return c, nil
}

func (p *Postgres) GetLatestConversationForCandidate(ctx context.Context, candidateID int64) (model.Conversation, error) {
	c, err := scanConversation(p.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE candidate_id = $1 ORDER BY updated_at DESC, id DESC LIMIT 1`, candidateID))
	if err != nil {
		return model.Conversation{}, notFound(err)
	}
	return c, nil
}

func (p *Postgres) ListConversations(ctx context.Context, f ConversationFilter) ([]model.Conversation, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.JobID != 0 {
		add("job_id = $%d", f.JobID)
	}
	if f.CandidateID != 0 {
		add("candidate_id = $%d", f.CandidateID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Channel != "" {
		add("channel = $%d", string(f.Channel))
	}

	sql := `SELECT ` + conversationColumns + ` FROM conversations`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY id`

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	out := make([]model.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) AddMessage(ctx context.Context, m model.Message) (model.Message, error) {
	meta, err := json.Marshal(m.Meta)
	if err != nil {
		return model.Message{}, fmt.Errorf("encoding message meta: %w", err)
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Message{}, fmt.Errorf("starting message insert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, direction, content, candidate_language, meta)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		m.ConversationID, string(m.Direction), m.Content, m.Language, meta,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return model.Message{}, fmt.Errorf("inserting message: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, m.ConversationID); err != nil {
		return model.Message{}, fmt.Errorf("touching conversation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Message{}, fmt.Errorf("committing message: %w", err)
	}
	return m, nil
}

func (p *Postgres) ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, conversation_id, direction, content, candidate_language, meta, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	out := make([]model.Message, 0)
	for rows.Next() {
		var (
			m    model.Message
			meta []byte
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Content, &m.Language, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Meta); err != nil {
				return nil, fmt.Errorf("decoding message meta: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanState(row rowScanner) (preresume.State, error) {
	var (
		s   preresume.State
		raw []byte
	)
	if err := row.Scan(&raw, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return s, err
	}
	created, updated := s.CreatedAt, s.UpdatedAt
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("decoding pre-resume state: %w", err)
	}
	s.CreatedAt, s.UpdatedAt = created, updated
	return s, nil
}

func (p *Postgres) GetPreResumeSession(ctx context.Context, sessionID string) (preresume.State, error) {
	s, err := scanState(p.pool.QueryRow(ctx,
		`SELECT state, created_at, updated_at FROM pre_resume_sessions WHERE session_id = $1`, sessionID))
	if err != nil {
		return preresume.State{}, notFound(err)
	}
	return s, nil
}

func (p *Postgres) GetPreResumeSessionByConversation(ctx context.Context, conversationID int64) (preresume.State, error) {
	s, err := scanState(p.pool.QueryRow(ctx,
		`SELECT state, created_at, updated_at FROM pre_resume_sessions WHERE conversation_id = $1`, conversationID))
	if err != nil {
		return preresume.State{}, notFound(err)
	}
	return s, nil
}

func (p *Postgres) UpsertPreResumeSession(ctx context.Context, s preresume.State) error {
	if s.SessionID == "" {
		return fmt.Errorf("pre-resume session without id")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding pre-resume state: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO pre_resume_sessions (session_id, conversation_id, job_id, candidate_id, status, next_followup_at, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   next_followup_at = EXCLUDED.next_followup_at,
		   state = EXCLUDED.state,
		   updated_at = NOW()`,
		s.SessionID, s.ConversationID, s.JobID, s.CandidateID, string(s.Status), s.NextFollowupAt, raw)
	if err != nil {
		return fmt.Errorf("saving pre-resume session %s: %w", s.SessionID, err)
	}
	return nil
}

func (p *Postgres) ListDuePreResumeSessions(ctx context.Context, jobID int64, now time.Time, limit int) ([]preresume.State, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx,
		`SELECT state, created_at, updated_at FROM pre_resume_sessions
		 WHERE ($1::bigint = 0 OR job_id = $1)
		   AND status NOT IN ('resume_received', 'not_interested', 'unreachable', 'stalled')
		   AND next_followup_at IS NOT NULL AND next_followup_at <= $2
		 ORDER BY next_followup_at, conversation_id
		 LIMIT $3`, jobID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("listing due sessions: %w", err)
	}
	defer rows.Close()

	out := make([]preresume.State, 0)
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) InsertPreResumeEvent(ctx context.Context, ev model.PreResumeEvent) error {
	details, err := json.Marshal(orEmpty(ev.Details))
	if err != nil {
		return fmt.Errorf("encoding event details: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO pre_resume_events
		   (session_id, conversation_id, event_type, intent, inbound_text, outbound_text, state_status, details)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.SessionID, ev.ConversationID, ev.EventType, ev.Intent, ev.InboundText, ev.OutboundText, ev.StateStatus, details)
	if err != nil {
		return fmt.Errorf("inserting pre-resume event: %w", err)
	}
	return nil
}

func (p *Postgres) RecordWebhookEvent(ctx context.Context, key, source string, payload map[string]any) (bool, error) {
	raw, err := json.Marshal(orEmpty(payload))
	if err != nil {
		return false, fmt.Errorf("encoding webhook payload: %w", err)
	}
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO webhook_events (event_key, source, payload) VALUES ($1, $2, $3)
		 ON CONFLICT (event_key) DO NOTHING`, key, source, raw)
	if err != nil {
		return false, fmt.Errorf("recording webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) GetJobAssessment(ctx context.Context, jobID int64) (model.JobAssessment, error) {
	var a model.JobAssessment
	err := p.pool.QueryRow(ctx,
		`SELECT job_id, assessment_id, name, jd_hash, prepared_at FROM job_assessments WHERE job_id = $1`, jobID,
	).Scan(&a.JobID, &a.AssessmentID, &a.Name, &a.JDHash, &a.PreparedAt)
	if err != nil {
		return model.JobAssessment{}, notFound(err)
	}
	return a, nil
}

func (p *Postgres) SaveJobAssessment(ctx context.Context, a model.JobAssessment) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO job_assessments (job_id, assessment_id, name, jd_hash)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (job_id) DO UPDATE SET
		   assessment_id = EXCLUDED.assessment_id,
		   name = EXCLUDED.name,
		   jd_hash = EXCLUDED.jd_hash,
		   prepared_at = NOW()`,
		a.JobID, a.AssessmentID, a.Name, a.JDHash)
	if err != nil {
		return fmt.Errorf("saving job assessment: %w", err)
	}
	return nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
