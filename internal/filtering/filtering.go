// Package filtering narrows the candidates of a job down to outreach targets.
package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/tener-recruiter/internal/model"
)

// Filter names.
const (
	ForcedTestName     = "forced_test"
	ExcludeFileName    = "exclude_file"
	EligibleStatusName = "eligible_status"
)

// Filter is a single narrowing step applied to outreach targets.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate() error
	Apply(ctx context.Context, targets []model.CandidateMatch) ([]model.CandidateMatch, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

type statusProvider interface {
	Status() Status
}

// Filtering runs filters in order and remembers what each one did.
type Filtering struct {
	steps   []Filter
	logger  *zap.Logger
	results map[string]Step
}

func New(steps []Filter, logger *zap.Logger) *Filtering {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filtering{steps: steps, logger: logger, results: make(map[string]Step)}
}

// Run executes the enabled filters sequentially.
func (f *Filtering) Run(ctx context.Context, targets []model.CandidateMatch) ([]model.CandidateMatch, error) {
	for _, step := range f.steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	for _, step := range f.steps {
		if !step.IsEnabled() {
			f.logger.Debug("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, targets)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		f.logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)
		f.results[step.Name()] = info
		targets = next
	}

	return targets, nil
}

// Dropped returns how many targets the named step removed in the last run.
func (f *Filtering) Dropped(name string) int {
	return f.results[name].Dropped
}

// Describe returns status entries for the configured filters.
func (f *Filtering) Describe() []Status {
	statuses := make([]Status, 0, len(f.steps))
	for _, step := range f.steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}
		statuses = append(statuses, Status{Name: step.Name(), Enabled: step.IsEnabled()})
	}
	return statuses
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func (f *Filtering) DisableByName(name, reason string) {
	for _, step := range f.steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

func keep(targets []model.CandidateMatch, ok func(model.CandidateMatch) bool) ([]model.CandidateMatch, Step) {
	out := make([]model.CandidateMatch, 0, len(targets))
	for _, t := range targets {
		if ok(t) {
			out = append(out, t)
		}
	}
	return out, Step{Initial: len(targets), Dropped: len(targets) - len(out), Left: len(out)}
}
