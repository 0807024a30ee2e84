package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/tener-recruiter/internal/events"
	"github.com/spigell/tener-recruiter/internal/filtering"
	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/interview"
	"github.com/spigell/tener-recruiter/internal/matching"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/preresume"
	"github.com/spigell/tener-recruiter/internal/provider"
	"github.com/spigell/tener-recruiter/internal/provider/manual"
	"github.com/spigell/tener-recruiter/internal/provider/mock"
	"github.com/spigell/tener-recruiter/internal/provider/unipile"
	"github.com/spigell/tener-recruiter/internal/store"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubVerifier returns fixed verdicts by LinkedIn id; unknown profiles are
// rejected.
type stubVerifier map[string]matching.Result

func (s stubVerifier) Verify(_ context.Context, _ model.Job, c model.Candidate) (matching.Result, error) {
	if r, ok := s[c.LinkedInID]; ok {
		return r, nil
	}
	return matching.Result{Score: 20, Verdict: matching.VerdictRejected}, nil
}

type fakeInterview struct {
	mu        sync.Mutex
	sessions  map[string]interview.Session
	started   int
	refreshed int
}

func newFakeInterview() *fakeInterview {
	return &fakeInterview{sessions: map[string]interview.Session{}}
}

func (f *fakeInterview) StartSession(_ context.Context, req interview.StartRequest) (interview.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	id := fmt.Sprintf("iv-%d-%d", req.JobID, req.CandidateID)
	s := interview.Session{
		SessionID:   id,
		JobID:       req.JobID,
		CandidateID: req.CandidateID,
		Status:      "invited",
		EntryURL:    "https://interview.example/s/" + id,
		Provider:    "fake",
	}
	f.sessions[id] = s
	return s, nil
}

func (f *fakeInterview) GetSession(_ context.Context, id string) (interview.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return interview.Session{}, errors.New("session not found")
	}
	return s, nil
}

func (f *fakeInterview) RefreshSession(ctx context.Context, id string, _ bool) (interview.Session, error) {
	f.mu.Lock()
	f.refreshed++
	f.mu.Unlock()
	return f.GetSession(ctx, id)
}

func (f *fakeInterview) ListSessions(_ context.Context, jobID int64, _ string, _ int) ([]interview.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interview.Session
	for _, s := range f.sessions {
		if s.JobID == jobID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeInterview) GetScorecard(_ context.Context, id string) (interview.Scorecard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return interview.Scorecard{TotalScore: f.sessions[id].TotalScore}, nil
}

func (f *fakeInterview) set(id, status string, score *float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[id]
	s.Status = status
	s.TotalScore = score
	f.sessions[id] = s
}

// flakyChannel fails sends with err while it is set. before sees every send
// attempt first.
type flakyChannel struct {
	provider.Channel
	mu     sync.Mutex
	err    error
	before func(model.Candidate)
}

func (c *flakyChannel) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *flakyChannel) SendMessage(ctx context.Context, p model.Candidate, text string) (model.Delivery, error) {
	c.mu.Lock()
	err, before := c.err, c.before
	c.mu.Unlock()

	if before != nil {
		before(p)
	}
	if err != nil {
		return model.Delivery{Provider: "mock", Error: err.Error()}, err
	}
	return c.Channel.SendMessage(ctx, p, text)
}

type fixtureConfig struct {
	profiles  []model.Candidate
	verdicts  stubVerifier
	policy    Policy
	interview bool
	preResume preresume.Options
	// wrap decorates the mock channel given to the workflow.
	wrap func(provider.Channel) provider.Channel
}

type fixture struct {
	wf     *Workflow
	st     *store.Memory
	ch     *mock.Channel
	manual *manual.Channel
	rec    *events.Recorder
	iv     *fakeInterview
	clock  *testClock
	logs   *observer.ObservedLogs
	job    model.Job
}

func newFixture(t *testing.T, cfg fixtureConfig) *fixture {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	clock := &testClock{now: fixedNow}
	f := &fixture{
		st:     store.NewMemory(),
		ch:     mock.New(cfg.profiles),
		manual: manual.New(nil),
		rec:    &events.Recorder{},
		clock:  clock,
		logs:   logs,
	}

	opts := cfg.preResume
	opts.Now = clock.Now
	var ch provider.Channel = f.ch
	if cfg.wrap != nil {
		ch = cfg.wrap(ch)
	}
	deps := Deps{
		Store:     f.st,
		Channel:   ch,
		Manual:    f.manual,
		PreResume: preresume.NewService(nil, opts),
		Publisher: f.rec,
		Logger:    zap.New(core),
		Now:       clock.Now,
	}
	if cfg.verdicts != nil {
		deps.Verifier = cfg.verdicts
	}
	if cfg.interview {
		f.iv = newFakeInterview()
		deps.Interview = f.iv
	}

	wf, err := New(deps, cfg.policy)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.wf = wf
	f.job = f.createJob(t, "Go Engineer")
	return f
}

func (f *fixture) createJob(t *testing.T, title string) model.Job {
	t.Helper()
	job, err := f.wf.CreateJob(context.Background(), model.Job{
		Title:  title,
		JDText: "Build distributed systems in Go.\nPostgres, Redis, Kubernetes.",
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func (f *fixture) candidate(t *testing.T, linkedInID string) model.Candidate {
	t.Helper()
	c, err := f.st.GetCandidateByLinkedInID(context.Background(), linkedInID)
	if err != nil {
		t.Fatalf("candidate %s: %v", linkedInID, err)
	}
	return c
}

func (f *fixture) match(t *testing.T, jobID int64, linkedInID string) model.Match {
	t.Helper()
	m, err := f.st.GetCandidateMatch(context.Background(), jobID, f.candidate(t, linkedInID).ID)
	if err != nil {
		t.Fatalf("match %s: %v", linkedInID, err)
	}
	return m
}

func (f *fixture) conversation(t *testing.T, jobID int64, linkedInID string) model.Conversation {
	t.Helper()
	c, _, err := f.st.GetOrCreateConversation(context.Background(), jobID, f.candidate(t, linkedInID).ID, model.ChannelLinkedIn)
	if err != nil {
		t.Fatalf("conversation %s: %v", linkedInID, err)
	}
	return c
}

func (f *fixture) run(t *testing.T, jobID int64) JobRunSummary {
	t.Helper()
	sum, err := f.wf.ExecuteJobWorkflow(context.Background(), jobID, JobRunOptions{})
	if err != nil {
		t.Fatalf("ExecuteJobWorkflow: %v", err)
	}
	return sum
}

func (f *fixture) sentTo(recipient string) []string {
	var out []string
	for _, m := range f.ch.Sent() {
		if m.Recipient == recipient {
			out = append(out, m.Text)
		}
	}
	return out
}

func profile(id string, requiresConnection bool) model.Candidate {
	return model.Candidate{
		LinkedInID: id,
		FullName:   strings.ToUpper(id[:1]) + id[1:] + " Doe",
		Headline:   "Go engineer",
		Skills:     []string{"go", "postgres"},
		Languages:  []string{"en"},
		Raw:        map[string]any{"requires_connection": requiresConnection},
	}
}

var (
	verified    = matching.Result{Score: 82, Verdict: matching.VerdictVerified}
	needsResume = matching.Result{Score: 50, Verdict: matching.VerdictNeedsResume}
)

func ptr(v float64) *float64 { return &v }

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(Deps{}, Policy{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := New(Deps{Store: store.NewMemory(), Channel: mock.New(nil)}, Policy{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing pre-resume service must fail, got %v", err)
	}
}

func TestCreateJobValidates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureConfig{})
	_, err := f.wf.CreateJob(context.Background(), model.Job{Title: "No description"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExecuteJobWorkflowContactAll(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureConfig{
		profiles: []model.Candidate{profile("anna", false), profile("boris", false)},
		verdicts: stubVerifier{"anna": verified},
		policy:   Policy{ContactAll: true},
	})

	sum := f.run(t, f.job.ID)
	if sum.Searched != 2 || sum.Verified != 1 || sum.NeedsResume != 1 || sum.Rejected != 0 {
		t.Fatalf("unexpected verification counts: %+v", sum)
	}
	if sum.Added != 2 || sum.OutreachSent != 2 || sum.Pending != 0 || sum.Failed != 0 {
		t.Fatalf("unexpected outreach counts: %+v", sum)
	}
	if len(sum.ConversationIDs) != 2 {
		t.Fatalf("expected two conversations, got %v", sum.ConversationIDs)
	}

	texts := f.sentTo("boris")
	if len(texts) != 1 || !strings.Contains(texts[0], "CV") {
		t.Fatalf("needs_resume candidate must be asked for a CV, got %q", texts)
	}
	if m := f.match(t, f.job.ID, "boris"); m.Status != funnel.StatusOutreachSent || m.Notes.PreResume == nil {
		t.Fatalf("unexpected match %+v", m)
	}
	if m := f.match(t, f.job.ID, "anna"); m.Status != funnel.StatusOutreachSent || m.Notes.PreResume != nil {
		t.Fatalf("verified candidate must get plain outreach, got %+v", m)
	}

	if got := len(f.rec.OfType(events.TypeOutreachResult)); got != 2 {
		t.Fatalf("expected 2 outreach events, got %d", got)
	}
	if got := f.logs.FilterMessage("outreach finished").Len(); got != 1 {
		t.Fatalf("expected one outreach summary log, got %d", got)
	}
}

func TestExecuteJobWorkflowWithoutContactAllSkipsRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureConfig{
		profiles: []model.Candidate{profile("anna", false), profile("boris", false)},
		verdicts: stubVerifier{"anna": verified},
	})

	sum := f.run(t, f.job.ID)
	if sum.Rejected != 1 || sum.Added != 1 || sum.Outreached != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if _, err := f.st.GetCandidateByLinkedInID(context.Background(), "boris"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rejected candidate must not be stored, got %v", err)
	}
	if texts := f.sentTo("boris"); len(texts) != 0 {
		t.Fatalf("rejected candidate contacted: %q", texts)
	}
}

func TestExecuteJobWorkflowDeclinedConfirmation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureConfig{
		profiles: []model.Candidate{profile("anna", false)},
		verdicts: stubVerifier{"anna": verified},
	})

	asked := 0
	sum, err := f.wf.ExecuteJobWorkflow(context.Background(), f.job.ID, JobRunOptions{
		ConfirmOutreach: func(n int) bool { asked = n; return false },
	})
	if err != nil {
		t.Fatalf("ExecuteJobWorkflow: %v", err)
	}
	if asked != 1 || !sum.Skipped || sum.Outreached != 0 {
		t.Fatalf("unexpected summary %+v (asked %d)", sum, asked)
	}
	if len(f.ch.Sent()) != 0 {
		t.Fatalf("nothing must be sent after a declined confirmation")
	}
	if m := f.match(t, f.job.ID, "anna"); m.Status != funnel.StatusVerified {
		t.Fatalf("status changed to %s", m.Status)
	}
}

func TestOutreachCandidatesUnknownCandidate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureConfig{})
	res, err := f.wf.OutreachCandidates(context.Background(), f.job.ID, []int64{999})
	if err != nil {
		t.Fatalf("OutreachCandidates: %v", err)
	}
	if res.Total != 1 || res.Failed != 1 || res.Items[0].Error != "candidate_not_in_job" {
		t.Fatalf("unexpected result %+v", res)
	}

	empty, err := f.wf.OutreachCandidates(context.Background(), f.job.ID, nil)
	if err != nil || empty.Total != 0 {
		t.Fatalf("empty request: %+v, %v", empty, err)
	}
}

func TestPendingConnectionThenPoll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, fixtureConfig{
		profiles: []model.Candidate{profile("carl", true)},
		verdicts: stubVerifier{"carl": verified},
	})

	sum := f.run(t, f.job.ID)
	if sum.Pending != 1 || sum.OutreachSent != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if !f.ch.Invited("carl") {
		t.Fatalf("connection request was not sent")
	}
	conv := f.conversation(t, f.job.ID, "carl")
	if conv.Status != model.ConversationWaitingConnection {
		t.Fatalf("conversation status %s", conv.Status)
	}
	if m := f.match(t, f.job.ID, "carl"); m.Status != funnel.StatusOutreachPendingConnection {
		t.Fatalf("match status %s", m.Status)
	}

	res, err := f.wf.PollPendingConnections(ctx, 0, 0)
	if err != nil {
		t.Fatalf("PollPendingConnections: %v", err)
	}
	if res.Checked != 1 || res.StillWaiting != 1 || res.Sent != 0 {
		t.Fatalf("unexpected poll before accept %+v", res)
	}

	f.ch.Accept("carl")
	res, err = f.wf.PollPendingConnections(ctx, 0, 0)
	if err != nil {
		t.Fatalf("PollPendingConnections: %v", err)
	}
	if res.Connected != 1 || res.Sent != 1 {
		t.Fatalf("unexpected poll after accept %+v", res)
	}

	conv = f.conversation(t, f.job.ID, "carl")
	if conv.Status != model.ConversationActive || conv.ExternalChatID != mock.ChatID("carl") {
		t.Fatalf("unexpected conversation %+v", conv)
	}
	m := f.match(t, f.job.ID, "carl")
	if m.Status != funnel.StatusOutreachSent || m.Notes.Outreach == nil || m.Notes.Outreach.State != outreachSentAfterConnection {
		t.Fatalf("unexpected match %+v", m)
	}
	msgs, err := f.st.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if last := msgs[len(msgs)-1]; last.Meta.Type != model.MessageOutreachAfterConnection {
		t.Fatalf("last message type %s", last.Meta.Type)
	}

	// A second pass has nothing left to do.
	res, err = f.wf.PollPendingConnections(ctx, 0, 0)
	if err != nil {
		t.Fatalf("PollPendingConnections: %v", err)
	}
	if res.Checked != 0 || len(f.ch.Sent()) != 1 {
		t.Fatalf("poll is not idempotent: %+v, sent %d", res, len(f.ch.Sent()))
	}
}

func TestPendingDeliveryKeepsWaitingOnProviderError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	flaky := &flakyChannel{}
	f := newFixture(t, fixtureConfig{
		profiles: []model.Candidate{profile("carl", true)},
		verdicts: stubVerifier{"carl": verified},
		wrap: func(ch provider.Channel) provider.Channel {
			flaky.Channel = ch
			return flaky
		},
	})

	f.run(t, f.job.ID)
	f.ch.Accept("carl")
	flaky.fail(&unipile.APIError{StatusCode: 502, Body: "bad gateway"})

	res, err := f.wf.PollPendingConnections(ctx, 0, 0)
	if err != nil {
		t.Fatalf("PollPendingConnections: %v", err)
	}
	if res.Connected != 1 || res.Sent != 0 || res.Failed != 1 {
		t.Fatalf("unexpected poll with a failing provider %+v", res)
	}
	if conv := f.conversation(t, f.job.ID, "carl"); conv.Status != model.ConversationWaitingConnection {
		t.Fatalf("conversation left waiting_connection: %s", conv.Status)
	}
	if m := f.match(t, f.job.ID, "carl"); m.Status != funnel.StatusOutreachPendingConnection {
		t.Fatalf("match status %s", m.Status)
	}

	// The connection event path keeps the message too.
	ev, err := f.wf.ProcessConnectionEvent(ctx, ConnectionEvent{ProviderID: "carl"})
	if err != nil || len(ev.Delivered) != 1 || ev.Delivered[0].Sent {
		t.Fatalf("unexpected event result %+v, %v", ev, err)
	}

	flaky.fail(nil)
	res, err = f.wf.PollPendingConnections(ctx, 0, 0)
	if err != nil {
		t.Fatalf("PollPendingConnections: %v", err)
	}
	if res.Checked != 1 || res.Sent != 1 {
		t.Fatalf("held message not delivered after recovery %+v", res)
	}
	conv := f.conversation(t, f.job.ID, "carl")
	if conv.Status != model.ConversationActive {
		t.Fatalf("conversation status %s", conv.Status)
	}
	if m := f.match(t, f.job.ID, "carl"); m.Status != funnel.StatusOutreachSent {
		t.Fatalf("match status %s", m.Status)
	}
	if texts := f.sentTo("carl"); len(texts) != 1 {
		t.Fatalf("expected exactly one delivered message, got %q", texts)
	}
	msgs, err := f.st.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if last := msgs[len(msgs)-1]; last.Meta.Type != model.MessageOutreachAfterConnection {
		t.Fatalf("last message type %s", last.Meta.Type)
	}
}

func TestOutreachMarksSendingBeforeDelivery(t *testing.T) {
	t.Parallel()

	var f *fixture
	var seen []string
	f = newFixture(t, fixtureConfig{
		profiles: []model.Candidate{profile("anna", false)},
		verdicts: stubVerifier{"anna": verified},
		wrap: func(ch provider.Channel) provider.Channel {
			return &flakyChannel{Channel: ch, before: func(p model.Candidate) {
				m := f.match(t, f.job.ID, p.LinkedInID)
				if m.Notes.Outreach == nil {
					seen = append(seen, "")
					return
				}
				seen = append(seen, m.Notes.Outreach.State)
			}}
		},
	})

	f.run(t, f.job.ID)
	if len(seen) != 1 || seen[0] != outreachSending {
		t.Fatalf("outreach state before the provider call: %q", seen)
	}
	if m := f.match(t, f.job.ID, "anna"); m.Notes.Outreach == nil || m.Notes.Outreach.State != outreachSent {
		t.Fatalf("unexpected outreach state after delivery %+v", m.Notes.Outreach)
	}
}

func TestProcessConnectionEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, fixtureConfig{
		profiles: []model.Candidate{profile("carl", true)},
		verdicts: stubVerifier{"carl": verified},
	})

	res, err := f.wf.ProcessConnectionEvent(ctx, ConnectionEvent{ProviderID: "nobody"})
	if err != nil || res.Reason != "candidate_not_found" {
		t.Fatalf("unknown provider id: %+v, %v", res, err)
	}
	if _, err := f.wf.ProcessConnectionEvent(ctx, ConnectionEvent{}); err == nil {
		t.Fatalf("empty event must fail validation")
	}

	f.run(t, f.job.ID)
	f.ch.Accept("carl")

	res, err = f.wf.ProcessConnectionEvent(ctx, ConnectionEvent{ProviderID: "carl"})
	if err != nil {
		t.Fatalf("ProcessConnectionEvent: %v", err)
	}
	if !res.Processed || len(res.Delivered) != 1 || !res.Delivered[0].Sent {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = f.wf.ProcessConnectionEvent(ctx, ConnectionEvent{ProviderID: "carl"})
	if err != nil || res.Reason != "conversation_not_waiting_connection" {
		t.Fatalf("repeated event: %+v, %v", res, err)
	}
}

func TestOutreachRebindsChatAcrossJobs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, fixtureConfig{
		profiles: []model.Candidate{profile("dana", false)},
		verdicts: stubVerifier{"dana": verified},
	})

	f.run(t, f.job.ID)
	second := f.createJob(t, "Senior Go Engineer")
	sum := f.run(t, second.ID)
	if sum.OutreachSent != 1 {
		t.Fatalf("unexpected second run %+v", sum)
	}

	binding := sum.Outreach.Items[0].ChatBinding
	if binding == nil || binding.Status != model.BindingRebound {
		t.Fatalf("expected rebound binding, got %+v", binding)
	}

	chatID := mock.ChatID("dana")
	first := f.conversation(t, f.job.ID, "dana")
	latest := f.conversation(t, second.ID, "dana")
	if first.ExternalChatID != "" || latest.ExternalChatID != chatID {
		t.Fatalf("chat id not moved: first %q, latest %q", first.ExternalChatID, latest.ExternalChatID)
	}
	if got := len(f.rec.OfType(events.TypeChatRebound)); got != 1 {
		t.Fatalf("expected one chat_rebound event, got %d", got)
	}

	res, err := f.wf.ProcessProviderInboundMessage(ctx, ProviderInbound{ChatID: chatID, Text: "What is the salary range?"})
	if err != nil {
		t.Fatalf("ProcessProviderInboundMessage: %v", err)
	}
	if !res.Processed || res.ConversationID != latest.ID {
		t.Fatalf("inbound routed to %d, want %d", res.ConversationID, latest.ID)
	}
}

func TestForcedTestFilter(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureConfig{
		profiles: []model.Candidate{profile("fedor", false), profile("gleb", false)},
		verdicts: stubVerifier{"fedor": needsResume, "gleb": verified},
	})
	f.wf.policy.ForcedTest = filtering.ForcedTestConfig{JobIDs: []int64{f.job.ID}, Identifiers: []string{"fedor"}}

	sum := f.run(t, f.job.ID)
	if sum.Outreached != 1 || sum.Outreach.TestFilterSkipped != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(f.sentTo("gleb")) != 0 || len(f.sentTo("fedor")) != 1 {
		t.Fatalf("only the allowlisted candidate may be contacted: %+v", f.ch.Sent())
	}

	m := f.match(t, f.job.ID, "fedor")
	if m.Notes.ForcedTest == nil || m.Notes.ForcedTest.Identifier != "fedor" {
		t.Fatalf("missing forced test marker: %+v", m.Notes)
	}
	if m.Score < defaultForcedScore {
		t.Fatalf("forced score not applied: %v", m.Score)
	}
}

func TestSkipFiltersKeepsEligibility(t *testing.T) {
	t.Parallel()

	f := newFixture(t, fixtureConfig{
		profiles: []model.Candidate{profile("fedor", false), profile("gleb", false)},
		verdicts: stubVerifier{"fedor": needsResume, "gleb": verified},
	})
	f.wf.policy.ForcedTest = filtering.ForcedTestConfig{JobIDs: []int64{f.job.ID}, Identifiers: []string{"fedor"}}
	f.wf.policy.SkipFilters = []string{filtering.ForcedTestName, filtering.EligibleStatusName}

	sum := f.run(t, f.job.ID)
	if sum.Outreach.TestFilterSkipped != 0 || len(f.sentTo("gleb")) != 1 {
		t.Fatalf("forced test filter must be skipped: %+v", sum.Outreach)
	}

	var eligible bool
	for _, st := range sum.Outreach.Filters {
		if st.Name == filtering.EligibleStatusName {
			eligible = st.Enabled
		}
	}
	if !eligible {
		t.Fatalf("eligible status filter must stay on: %+v", sum.Outreach.Filters)
	}
}

func TestVerifyAndAddCandidatesAcrossJobs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, fixtureConfig{verdicts: stubVerifier{"anna": verified}})
	profiles := []model.Candidate{profile("anna", false), profile("boris", false)}

	res, err := f.wf.VerifyProfiles(ctx, f.job.ID, profiles)
	if err != nil {
		t.Fatalf("VerifyProfiles: %v", err)
	}
	if res.Verified != 1 || res.Rejected != 1 || res.NeedsResume != 0 {
		t.Fatalf("unexpected verdicts: %+v", res)
	}
	if res.Items[1].Status != funnel.StatusRejected {
		t.Fatalf("without contact-all boris stays rejected, got %s", res.Items[1].Status)
	}

	second := f.createJob(t, "Platform Engineer")
	for _, jobID := range []int64{f.job.ID, second.ID} {
		added, err := f.wf.AddVerifiedCandidates(ctx, jobID, res.Items[:1])
		if err != nil {
			t.Fatalf("AddVerifiedCandidates(%d): %v", jobID, err)
		}
		if len(added.Added) != 1 || added.Errors != 0 {
			t.Fatalf("unexpected add result for job %d: %+v", jobID, added)
		}
	}

	first := f.match(t, f.job.ID, "anna")
	other := f.match(t, second.ID, "anna")
	if first.CandidateID != other.CandidateID {
		t.Fatalf("candidate duplicated: %d vs %d", first.CandidateID, other.CandidateID)
	}
	if first.Status != funnel.StatusVerified || first.Notes.Verification == nil {
		t.Fatalf("unexpected match %+v", first)
	}

	if _, err := f.wf.VerifyProfiles(ctx, 9999, profiles); err == nil {
		t.Fatal("unknown job must fail")
	}
}
