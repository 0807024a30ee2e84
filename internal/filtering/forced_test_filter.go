package filtering

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/spigell/tener-recruiter/internal/model"
)

type ForcedTestConfig struct {
	JobIDs      []int64
	Identifiers []string
}

type forcedTestFilter struct {
	jobID       int64
	active      bool
	identifiers map[string]struct{}
	matched     map[int64]string
	disabled    string
}

// NewForcedTest restricts delivery to the allowlisted identifiers when jobID
// is one of the configured test jobs.
func NewForcedTest(cfg ForcedTestConfig, jobID int64) Filter {
	f := &forcedTestFilter{
		jobID:       jobID,
		active:      slices.Contains(cfg.JobIDs, jobID),
		identifiers: make(map[string]struct{}, len(cfg.Identifiers)),
		matched:     make(map[int64]string),
	}
	for _, id := range cfg.Identifiers {
		if id = normalizeIdentifier(id); id != "" {
			f.identifiers[id] = struct{}{}
		}
	}
	return f
}

// Identify returns the allowlist entry matching c when jobID is a test job.
func (cfg ForcedTestConfig) Identify(jobID int64, c model.Candidate) (string, bool) {
	f := NewForcedTest(cfg, jobID).(*forcedTestFilter)
	if !f.active {
		return "", false
	}
	return f.identify(c)
}

func (f *forcedTestFilter) Name() string { return ForcedTestName }

func (f *forcedTestFilter) Disable(reason string) { f.disabled = reason }

func (f *forcedTestFilter) IsEnabled() bool { return f.active && f.disabled == "" }

func (f *forcedTestFilter) Validate() error { return nil }

func (f *forcedTestFilter) Apply(_ context.Context, targets []model.CandidateMatch) ([]model.CandidateMatch, Step, error) {
	f.matched = make(map[int64]string)
	out, step := keep(targets, func(t model.CandidateMatch) bool {
		id, ok := f.identify(t.Candidate)
		if ok {
			f.matched[t.Candidate.ID] = id
		}
		return ok
	})
	return out, step, nil
}

// Matched maps kept candidate ids to the allowlist entry that admitted them.
func (f *forcedTestFilter) Matched() map[int64]string {
	return f.matched
}

func (f *forcedTestFilter) identify(c model.Candidate) (string, bool) {
	for _, candidate := range []string{c.LinkedInID, c.ProviderID(), c.FullName} {
		id := normalizeIdentifier(candidate)
		if id == "" {
			continue
		}
		if _, ok := f.identifiers[id]; ok {
			return id, true
		}
	}
	return "", false
}

func (f *forcedTestFilter) Status() Status {
	ids := make([]string, 0, len(f.identifiers))
	for id := range f.identifiers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.disabled,
		Details: map[string]string{
			"job_id":      strconv.FormatInt(f.jobID, 10),
			"identifiers": strings.Join(ids, ","),
		},
	}
}

// ForcedMatches returns the allowlist matches of the forced test step, if any.
func (f *Filtering) ForcedMatches() map[int64]string {
	for _, step := range f.steps {
		if ft, ok := step.(*forcedTestFilter); ok && ft.IsEnabled() {
			return ft.Matched()
		}
	}
	return nil
}

func normalizeIdentifier(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "/")
	if i := strings.LastIndex(s, "/in/"); i >= 0 {
		s = s[i+len("/in/"):]
	}
	return s
}
