// Package matching decides whether a sourced profile fits a job.
package matching

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/spigell/tener-recruiter/internal/language"
	"github.com/spigell/tener-recruiter/internal/model"
)

type Verdict string

const (
	VerdictVerified    Verdict = "verified"
	VerdictNeedsResume Verdict = "needs_resume"
	VerdictRejected    Verdict = "rejected"
)

// Result is the outcome of one verification. Score is on a 0..100 scale.
type Result struct {
	Score       float64            `json:"score"`
	Verdict     Verdict            `json:"verdict"`
	Explanation string             `json:"explanation,omitempty"`
	Components  map[string]float64 `json:"components,omitempty"`
	// MissingFields lists profile data that would have been needed to decide.
	MissingFields []string `json:"missing_fields,omitempty"`
	// NoFitEvidence is set when a rejection comes from missing data rather
	// than from data that contradicts the job.
	NoFitEvidence bool `json:"no_fit_evidence,omitempty"`
}

type Verifier interface {
	Verify(ctx context.Context, job model.Job, candidate model.Candidate) (Result, error)
}

const (
	verifiedThreshold    = 60.0
	needsResumeThreshold = 35.0
)

// Rules is a keyword based verifier: skill overlap with the job text,
// experience and language fit.
type Rules struct {
	MinYears float64
}

func NewRules(minYears float64) *Rules {
	return &Rules{MinYears: minYears}
}

func (r *Rules) Verify(_ context.Context, job model.Job, candidate model.Candidate) (Result, error) {
	jdTokens := tokenSet(job.Title + " " + job.JDText)

	var missing []string
	components := map[string]float64{}

	skills := candidate.Skills
	if len(skills) == 0 {
		missing = append(missing, "skills")
		skills = strings.Fields(candidate.Headline)
	}
	matched := 0
	for _, skill := range skills {
		if _, ok := jdTokens[normalizeToken(skill)]; ok {
			matched++
		}
	}
	skillScore := 0.0
	if len(skills) > 0 {
		skillScore = math.Min(100, float64(matched)*100/math.Min(float64(len(skills)), 5))
	}
	components["skills"] = skillScore

	experienceScore := 50.0
	switch {
	case candidate.YearsExperience == 0:
		missing = append(missing, "years_experience")
	case candidate.YearsExperience >= r.MinYears:
		experienceScore = 100
	default:
		experienceScore = 100 * candidate.YearsExperience / math.Max(r.MinYears, 1)
	}
	components["experience"] = experienceScore

	languageScore := 70.0
	if len(job.PreferredLanguages) > 0 {
		if len(candidate.Languages) == 0 {
			missing = append(missing, "languages")
		} else {
			languageScore = 0
			for _, want := range job.PreferredLanguages {
				for _, have := range candidate.Languages {
					if language.Normalize(want) == language.Normalize(have) {
						languageScore = 100
					}
				}
			}
		}
	}
	components["language"] = languageScore

	score := math.Round((0.6*skillScore+0.25*experienceScore+0.15*languageScore)*10) / 10

	res := Result{Score: score, Components: components, MissingFields: missing}
	switch {
	case score >= verifiedThreshold:
		res.Verdict = VerdictVerified
		res.Explanation = "profile matches the job keywords"
	case score >= needsResumeThreshold || len(missing) > 0:
		res.Verdict = VerdictNeedsResume
		res.Explanation = "not enough evidence in the profile, a CV is needed"
	default:
		res.Verdict = VerdictRejected
		res.Explanation = "profile does not match the job"
	}
	res.NoFitEvidence = matched == 0 && len(missing) > 0

	return res, nil
}

// ApplyContactAll downgrades a rejection without fit evidence to needs_resume,
// so a CV is requested before the candidate is rejected for good.
func ApplyContactAll(res Result, contactAll bool) Result {
	if contactAll && res.Verdict == VerdictRejected {
		res.Verdict = VerdictNeedsResume
		res.Explanation = strings.TrimSpace(res.Explanation + "; contact-all mode requests a CV first")
	}
	return res
}

func tokenSet(text string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), isSeparator) {
		out[tok] = struct{}{}
	}
	return out
}

func normalizeToken(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), isSeparator), "")
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
}
