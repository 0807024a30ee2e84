package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/spigell/tener-recruiter/internal/logger"
	"github.com/spigell/tener-recruiter/internal/matching"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/utils"
	"go.uber.org/zap"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

// cachingGenerator is implemented by *Generator.
type cachingGenerator interface {
	contentGenerator
	GenerateContentWithCache(ctx context.Context, prompt, cacheName string) (string, error)
	EnsureJobCache(ctx context.Context, jobKey, displayName, jobPayload string) (string, error)
}

// Verifier asks Gemini for a verdict. When generation fails and a fallback is
// configured, the fallback decides instead.
type Verifier struct {
	generator contentGenerator
	fallback  matching.Verifier
	minScore  float64
	logger    *zap.Logger
	maxLogLen int
}

//go:embed prompt.md
var promptTemplate string

const (
	defaultMaxLogLength  = 200
	cachedJobPlaceholder = "(provided in the cached context)"
)

func NewVerifier(generator contentGenerator, fallback matching.Verifier, logger *zap.Logger, minScore float64, maxLogLength int) *Verifier {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Verifier{
		generator: generator,
		fallback:  fallback,
		minScore:  minScore,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (v *Verifier) Verify(ctx context.Context, job model.Job, candidate model.Candidate) (matching.Result, error) {
	res, err := v.verify(ctx, job, candidate)
	if err == nil {
		return res, nil
	}
	if v.fallback == nil {
		return matching.Result{}, err
	}

	v.logger.Warn("gemini verification failed, using fallback verifier",
		append(logger.ConversationFields(job.ID, candidate.ID, 0, ""), zap.Error(err))...)
	return v.fallback.Verify(ctx, job, candidate)
}

func (v *Verifier) verify(ctx context.Context, job model.Job, candidate model.Candidate) (matching.Result, error) {
	candidatePayload := map[string]any{
		"full_name":        candidate.FullName,
		"headline":         candidate.Headline,
		"location":         candidate.Location,
		"languages":        candidate.Languages,
		"skills":           candidate.Skills,
		"years_experience": candidate.YearsExperience,
	}
	candidateJSON, err := json.MarshalIndent(candidatePayload, "", "  ")
	if err != nil {
		return matching.Result{}, fmt.Errorf("marshal candidate payload: %w", err)
	}

	jobPayload := map[string]any{
		"title":               job.Title,
		"description":         job.JDText,
		"location":            job.Location,
		"preferred_languages": job.PreferredLanguages,
		"seniority":           job.Seniority,
	}
	jobJSON, err := json.MarshalIndent(jobPayload, "", "  ")
	if err != nil {
		return matching.Result{}, fmt.Errorf("marshal job payload: %w", err)
	}

	fields := append(logger.ConversationFields(job.ID, candidate.ID, 0, ""), zap.String(logger.FieldModel, v.generator.Model()))

	raw, err := v.generate(ctx, job, string(jobJSON), string(candidateJSON), fields)
	if err != nil {
		return matching.Result{}, err
	}

	v.logger.Debug("gemini generate content response", append(fields,
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, v.maxLogLen)),
	)...)

	res, err := parseResponse(raw)
	if err != nil {
		return matching.Result{}, err
	}

	if v.minScore > 0 && res.Verdict == matching.VerdictVerified && res.Score < v.minScore*100 {
		v.logger.Debug("downgrade verdict by score threshold", append(fields,
			zap.Float64("score", res.Score),
			zap.Float64("threshold", v.minScore),
		)...)
		res.Verdict = matching.VerdictNeedsResume
	}

	return res, nil
}

// generate puts the job into a cached context when the generator supports it
// and falls back to an inline prompt otherwise.
func (v *Verifier) generate(ctx context.Context, job model.Job, jobJSON, candidateJSON string, fields []zap.Field) (string, error) {
	if cg, ok := v.generator.(cachingGenerator); ok && job.ID > 0 {
		key := jobCacheKey(job)
		cacheName, err := cg.EnsureJobCache(ctx, key, fmt.Sprintf("job-%d", job.ID), "Job:\n"+jobJSON)
		if err == nil {
			prompt := buildPrompt(cachedJobPlaceholder, candidateJSON)
			v.logRequest(prompt, fields)
			return cg.GenerateContentWithCache(ctx, prompt, cacheName)
		}
		v.logger.Debug("job cache unavailable, sending inline prompt", append(fields, zap.Error(err))...)
	}

	prompt := buildPrompt(jobJSON, candidateJSON)
	v.logRequest(prompt, fields)
	return v.generator.GenerateContent(ctx, prompt)
}

func (v *Verifier) logRequest(prompt string, fields []zap.Field) {
	v.logger.Debug("gemini generate content request", append(fields,
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, v.maxLogLen)),
	)...)
}

func jobCacheKey(job model.Job) string {
	sum := sha256.Sum256([]byte(job.Title + "\n" + job.JDText))
	return fmt.Sprintf("%d-%x", job.ID, sum[:6])
}

func buildPrompt(jobJSON, candidateJSON string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Job:\n{{JOB_JSON}}\n\nCandidate:\n{{CANDIDATE_JSON}}\n\nJSON Response:"
	}
	prompt := strings.ReplaceAll(template, "{{JOB_JSON}}", jobJSON)
	prompt = strings.ReplaceAll(prompt, "{{CANDIDATE_JSON}}", candidateJSON)
	return prompt
}

func parseResponse(raw string) (matching.Result, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return matching.Result{}, fmt.Errorf("parse gemini response: %w", err)
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		score = 0
	}
	if score <= 1 {
		score *= 100
	}
	score = math.Round(math.Max(0, math.Min(100, score))*10) / 10

	res := matching.Result{
		Score:         score,
		Explanation:   coerceString(data["reason"]),
		MissingFields: coerceStrings(data["missing_fields"]),
	}

	switch matching.Verdict(strings.ToLower(coerceString(data["verdict"]))) {
	case matching.VerdictVerified:
		res.Verdict = matching.VerdictVerified
	case matching.VerdictNeedsResume:
		res.Verdict = matching.VerdictNeedsResume
	case matching.VerdictRejected:
		res.Verdict = matching.VerdictRejected
	default:
		if coerceBool(data["fit"]) {
			res.Verdict = matching.VerdictVerified
		} else if len(res.MissingFields) > 0 {
			res.Verdict = matching.VerdictNeedsResume
		} else {
			res.Verdict = matching.VerdictRejected
		}
	}
	res.NoFitEvidence = res.Verdict != matching.VerdictVerified && len(res.MissingFields) > 0

	return res, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

func coerceStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := coerceString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
