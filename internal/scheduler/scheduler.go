// Package scheduler runs the periodic workflow passes: pending connections,
// inbound polling, pre-resume reminders and interview sync.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/tener-recruiter/internal/logger"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/workflow"
)

// Pass names.
const (
	PassConnections = "connections"
	PassInbound     = "inbound"
	PassPreResume   = "pre_resume_followups"
	PassInterview   = "interview"
)

// Runner is the part of the workflow the scheduler drives.
type Runner interface {
	PollPendingConnections(ctx context.Context, jobID int64, limit int) (workflow.ConnectionPollResult, error)
	PollProviderInbound(ctx context.Context, jobID int64, limit, perChat int) (workflow.InboundPollResult, error)
	RunDuePreResumeFollowups(ctx context.Context, jobID int64, limit int) (workflow.FollowupResult, error)
	// RunDueInterviewFollowups syncs interview progress before reminding.
	RunDueInterviewFollowups(ctx context.Context, jobID int64, limit int) (workflow.InterviewFollowupResult, error)
}

type JobLister interface {
	ListJobs(ctx context.Context) ([]model.Job, error)
}

// Config holds cron specs per pass. An empty spec disables the pass.
type Config struct {
	Connections string `mapstructure:"connections"`
	Inbound     string `mapstructure:"inbound"`
	PreResume   string `mapstructure:"pre-resume"`
	Interview   string `mapstructure:"interview"`
	// Concurrency bounds the jobs processed at once within a pass.
	Concurrency int `mapstructure:"concurrency"`
	// Limit is the per-job batch size handed to each pass.
	Limit int `mapstructure:"limit"`
	// Timeout bounds one pass over all jobs.
	Timeout time.Duration `mapstructure:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		Connections: "@every 30m",
		Inbound:     "@every 5m",
		PreResume:   "@every 1h",
		Interview:   "@every 15m",
		Concurrency: 4,
		Limit:       100,
		Timeout:     10 * time.Minute,
	}
}

// Report summarizes one pass over all jobs.
type Report struct {
	Pass    string           `json:"pass"`
	Jobs    int              `json:"jobs"`
	Failed  int              `json:"failed"`
	Results map[int64]any    `json:"results"`
	Errors  map[int64]string `json:"errors,omitempty"`
}

type pass struct {
	name string
	spec string
	run  func(ctx context.Context, jobID int64) (any, error)
}

type Scheduler struct {
	cron   *cron.Cron
	jobs   JobLister
	passes []pass
	cfg    Config
	logger *zap.Logger
}

func New(runner Runner, jobs JobLister, cfg Config, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	cronLog := cronLogger{log: log.Sugar()}
	s := &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))),
		jobs:   jobs,
		cfg:    cfg,
		logger: log,
	}
	limit := cfg.Limit
	s.passes = []pass{
		{PassConnections, cfg.Connections, func(ctx context.Context, jobID int64) (any, error) {
			return runner.PollPendingConnections(ctx, jobID, limit)
		}},
		{PassInbound, cfg.Inbound, func(ctx context.Context, jobID int64) (any, error) {
			return runner.PollProviderInbound(ctx, jobID, limit, 0)
		}},
		{PassPreResume, cfg.PreResume, func(ctx context.Context, jobID int64) (any, error) {
			return runner.RunDuePreResumeFollowups(ctx, jobID, limit)
		}},
		{PassInterview, cfg.Interview, func(ctx context.Context, jobID int64) (any, error) {
			return runner.RunDueInterviewFollowups(ctx, jobID, limit)
		}},
	}
	return s
}

// Start registers the enabled passes and starts the cron loop. ctx bounds
// every pass started by the loop.
func (s *Scheduler) Start(ctx context.Context) error {
	enabled := 0
	for _, p := range s.passes {
		if p.spec == "" {
			continue
		}
		p := p
		if _, err := s.cron.AddFunc(p.spec, func() {
			if _, err := s.RunPass(ctx, p.name); err != nil {
				s.logger.Warn("scheduled pass failed", zap.String("pass", p.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("scheduling %s pass with spec %q: %w", p.name, p.spec, err)
		}
		s.logger.Info("pass scheduled", zap.String("pass", p.name), zap.String("spec", p.spec))
		enabled++
	}
	if enabled == 0 {
		return fmt.Errorf("no passes are scheduled")
	}
	s.cron.Start()
	return nil
}

// Stop stops the loop and waits for running passes.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunAll runs every pass once, in order, regardless of its spec.
func (s *Scheduler) RunAll(ctx context.Context) ([]Report, error) {
	reports := make([]Report, 0, len(s.passes))
	for _, p := range s.passes {
		r, err := s.RunPass(ctx, p.name)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// RunPass runs the named pass over every job. A failing job is counted and
// logged; only listing jobs or cancellation fail the pass.
func (s *Scheduler) RunPass(ctx context.Context, name string) (Report, error) {
	p, ok := s.pass(name)
	if !ok {
		return Report{}, fmt.Errorf("unknown pass %q", name)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	jobs, err := s.jobs.ListJobs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("listing jobs: %w", err)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })

	report := Report{Pass: name, Jobs: len(jobs), Results: make(map[int64]any, len(jobs))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			log := s.logger.With(zap.String("pass", name), zap.Int64(logger.FieldJobID, job.ID))
			start := time.Now()
			res, err := p.run(gctx, job.ID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				if report.Errors == nil {
					report.Errors = make(map[int64]string)
				}
				report.Errors[job.ID] = err.Error()
				log.Warn("pass failed for job", zap.Error(err))
				return nil
			}
			report.Results[job.ID] = res
			log.Debug("pass finished for job", zap.Duration("took", time.Since(start)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	s.logger.Info("pass finished",
		zap.String("pass", name),
		zap.Int("jobs", report.Jobs),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *Scheduler) pass(name string) (pass, bool) {
	for _, p := range s.passes {
		if p.name == name {
			return p, true
		}
	}
	return pass{}, false
}

// cronLogger routes cron's own messages to zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
