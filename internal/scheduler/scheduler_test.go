package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/workflow"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls map[string][]int64
	fail  map[int64]error
}

func (f *fakeRunner) record(pass string, jobID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string][]int64)
	}
	f.calls[pass] = append(f.calls[pass], jobID)
	return f.fail[jobID]
}

func (f *fakeRunner) PollPendingConnections(_ context.Context, jobID int64, _ int) (workflow.ConnectionPollResult, error) {
	return workflow.ConnectionPollResult{}, f.record(PassConnections, jobID)
}

func (f *fakeRunner) PollProviderInbound(_ context.Context, jobID int64, _, _ int) (workflow.InboundPollResult, error) {
	return workflow.InboundPollResult{}, f.record(PassInbound, jobID)
}

func (f *fakeRunner) RunDuePreResumeFollowups(_ context.Context, jobID int64, _ int) (workflow.FollowupResult, error) {
	return workflow.FollowupResult{}, f.record(PassPreResume, jobID)
}

func (f *fakeRunner) RunDueInterviewFollowups(_ context.Context, jobID int64, _ int) (workflow.InterviewFollowupResult, error) {
	return workflow.InterviewFollowupResult{}, f.record(PassInterview, jobID)
}

type staticJobs struct {
	jobs []model.Job
	err  error
}

func (s staticJobs) ListJobs(context.Context) ([]model.Job, error) {
	return s.jobs, s.err
}

func TestRunAllCoversEveryJob(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	jobs := staticJobs{jobs: []model.Job{{ID: 2}, {ID: 1}, {ID: 3}}}
	s := New(runner, jobs, Config{}, nil)

	reports, err := s.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(reports) != 4 {
		t.Fatalf("expected 4 reports, got %d", len(reports))
	}
	for _, name := range []string{PassConnections, PassInbound, PassPreResume, PassInterview} {
		if got := len(runner.calls[name]); got != 3 {
			t.Fatalf("%s: expected 3 job calls, got %d", name, got)
		}
	}
	for _, r := range reports {
		if r.Jobs != 3 || r.Failed != 0 || len(r.Results) != 3 {
			t.Fatalf("unexpected report %+v", r)
		}
	}
}

func TestRunPassIsolatesJobFailures(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	runner := &fakeRunner{fail: map[int64]error{2: errors.New("provider down")}}
	s := New(runner, staticJobs{jobs: []model.Job{{ID: 1}, {ID: 2}}}, Config{Concurrency: 1}, zap.New(core))

	report, err := s.RunPass(context.Background(), PassInbound)
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if report.Failed != 1 || report.Errors[2] != "provider down" {
		t.Fatalf("unexpected report %+v", report)
	}
	if _, ok := report.Results[1]; !ok {
		t.Fatalf("job 1 result missing: %+v", report)
	}
	if logs.FilterMessage("pass failed for job").Len() != 1 {
		t.Fatalf("expected one failure log, got %v", logs.All())
	}
}

func TestRunPassErrors(t *testing.T) {
	t.Parallel()

	s := New(&fakeRunner{}, staticJobs{err: errors.New("db gone")}, Config{}, nil)
	if _, err := s.RunPass(context.Background(), PassInterview); err == nil {
		t.Fatal("listing failure must fail the pass")
	}
	if _, err := s.RunPass(context.Background(), "unknown"); err == nil {
		t.Fatal("unknown pass must fail")
	}
}

func TestStartRejectsBadConfig(t *testing.T) {
	t.Parallel()

	if err := New(&fakeRunner{}, staticJobs{}, Config{Inbound: "every now and then"}, nil).Start(context.Background()); err == nil {
		t.Fatal("invalid spec must be rejected")
	}
	if err := New(&fakeRunner{}, staticJobs{}, Config{}, nil).Start(context.Background()); err == nil {
		t.Fatal("a scheduler without passes must be rejected")
	}

	s := New(&fakeRunner{}, staticJobs{}, DefaultConfig(), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
}
