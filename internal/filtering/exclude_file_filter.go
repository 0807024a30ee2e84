package filtering

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spigell/tener-recruiter/internal/model"
)

// ExcludedCandidates is the do-not-contact file format.
type ExcludedCandidates struct {
	Items []ExcludedCandidate `json:"items"`
}

type ExcludedCandidate struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

// LoadExcludedCandidates reads a do-not-contact file. An empty file means
// nothing is excluded.
func LoadExcludedCandidates(path string) (*ExcludedCandidates, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Size() == 0 {
		return &ExcludedCandidates{}, nil
	}

	var excluded ExcludedCandidates
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, err
	}
	return &excluded, nil
}

type excludeFileFilter struct {
	path string
}

// NewExcludeFile creates a filter that removes candidates listed in the exclude file.
func NewExcludeFile(path string) Filter {
	return &excludeFileFilter{
		path: path,
	}
}

func (f *excludeFileFilter) Name() string { return ExcludeFileName }

func (f *excludeFileFilter) Disable(string) {}

func (f *excludeFileFilter) IsEnabled() bool { return true }

func (f *excludeFileFilter) Validate() error { return nil }

func (f *excludeFileFilter) Apply(_ context.Context, targets []model.CandidateMatch) ([]model.CandidateMatch, Step, error) {
	if f.path == "" {
		return targets, Step{Initial: len(targets), Left: len(targets)}, nil
	}

	excluded, err := LoadExcludedCandidates(f.path)
	if err != nil {
		return nil, Step{}, fmt.Errorf("getting excluded candidates from file: %w", err)
	}

	ids := make(map[string]struct{}, len(excluded.Items))
	for _, item := range excluded.Items {
		if id := normalizeIdentifier(item.ID); id != "" {
			ids[id] = struct{}{}
		}
	}

	out, step := keep(targets, func(t model.CandidateMatch) bool {
		for _, id := range []string{t.Candidate.LinkedInID, t.Candidate.ProviderID()} {
			if _, ok := ids[normalizeIdentifier(id)]; ok {
				return false
			}
		}
		return true
	})
	return out, step, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}
