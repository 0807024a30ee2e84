package filtering

import (
	"context"

	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/model"
)

type eligibleStatusFilter struct{}

// NewEligibleStatus keeps matches that have not been contacted yet and were
// not rejected.
func NewEligibleStatus() Filter {
	return &eligibleStatusFilter{}
}

func (f *eligibleStatusFilter) Name() string { return EligibleStatusName }

func (f *eligibleStatusFilter) Disable(string) {}

func (f *eligibleStatusFilter) IsEnabled() bool { return true }

func (f *eligibleStatusFilter) Validate() error { return nil }

func (f *eligibleStatusFilter) Apply(_ context.Context, targets []model.CandidateMatch) ([]model.CandidateMatch, Step, error) {
	out, step := keep(targets, func(t model.CandidateMatch) bool {
		return Eligible(t.Match.Status)
	})
	return out, step, nil
}

// Eligible reports whether a match in status s may receive first outreach.
func Eligible(s funnel.Status) bool {
	switch s {
	case funnel.StatusAdded, funnel.StatusVerified, funnel.StatusNeedsResume:
		return true
	}
	return false
}
