package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/tener-recruiter/internal/funnel"
	"github.com/spigell/tener-recruiter/internal/logger"
	"github.com/spigell/tener-recruiter/internal/matching"
	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/notes"
	"github.com/spigell/tener-recruiter/internal/store"
)

// CreateJob validates and stores a job.
func (w *Workflow) CreateJob(ctx context.Context, job model.Job) (model.Job, error) {
	if err := validatePayload(job); err != nil {
		return model.Job{}, err
	}
	return w.store.InsertJob(ctx, job)
}

// SourceCandidates searches the channel for profiles fitting the job and
// enriches them. A failed enrichment keeps the search result.
func (w *Workflow) SourceCandidates(ctx context.Context, jobID int64, limit int) ([]model.Candidate, error) {
	job, err := w.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit, w.policy.SearchLimit, maxSearchLimit)

	log := logger.WithFields(w.logger, logger.ConversationFields(job.ID, 0, 0, "")...)
	profiles, err := w.channel.SearchProfiles(ctx, searchQuery(job), limit)
	if err != nil {
		return nil, fmt.Errorf("searching profiles: %w", err)
	}

	enriched := make([]model.Candidate, len(profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i, p := range profiles {
		g.Go(func() error {
			full, err := w.channel.EnrichProfile(gctx, p)
			if err != nil {
				log.Warn("enrich profile failed", zap.String("linkedin_id", p.LinkedInID), zap.Error(err))
				full = p
			}
			enriched[i] = full
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("profiles sourced", zap.Int("count", len(enriched)))
	return enriched, nil
}

func searchQuery(job model.Job) string {
	return strings.TrimSpace(strings.Join([]string{job.Title, job.Seniority, job.Location}, " "))
}

// VerifiedProfile is the verdict for one sourced profile.
type VerifiedProfile struct {
	Candidate model.Candidate `json:"candidate"`
	Result    matching.Result `json:"result"`
	Status    funnel.Status   `json:"status"`
	// ForcedIdentifier is the allowlist entry that admitted the profile.
	ForcedIdentifier string `json:"forced_identifier,omitempty"`
}

type VerifyResult struct {
	Items       []VerifiedProfile `json:"items"`
	Verified    int               `json:"verified"`
	NeedsResume int               `json:"needs_resume"`
	Rejected    int               `json:"rejected"`
	Errors      int               `json:"errors"`
}

// VerifyProfiles runs the matching function over profiles. Forced test
// candidates are verified with at least the forced score; in contact-all
// mode rejections become CV requests.
func (w *Workflow) VerifyProfiles(ctx context.Context, jobID int64, profiles []model.Candidate) (VerifyResult, error) {
	job, err := w.loadJob(ctx, jobID)
	if err != nil {
		return VerifyResult{}, err
	}

	var out VerifyResult
	for _, p := range profiles {
		res, err := w.verifier.Verify(ctx, job, p)
		if err != nil {
			out.Errors++
			w.logger.Warn("verify profile failed",
				zap.Int64(logger.FieldJobID, job.ID),
				zap.String("linkedin_id", p.LinkedInID),
				zap.Error(err),
			)
			continue
		}
		res = matching.ApplyContactAll(res, w.policy.ContactAll)

		item := VerifiedProfile{Candidate: p, Result: res}
		if id, ok := w.policy.ForcedTest.Identify(job.ID, p); ok {
			item.ForcedIdentifier = id
			item.Result.Score = math.Max(res.Score, w.policy.ForcedScore)
			item.Result.Verdict = matching.VerdictVerified
		}
		item.Status = funnel.Status(item.Result.Verdict)

		switch item.Status {
		case funnel.StatusVerified:
			out.Verified++
		case funnel.StatusNeedsResume:
			out.NeedsResume++
		default:
			item.Status = funnel.StatusRejected
			out.Rejected++
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

type AddResult struct {
	Added  []model.CandidateMatch `json:"added"`
	Errors int                    `json:"errors"`
}

// AddVerifiedCandidates stores the candidates and their matches. Existing
// candidates are updated, never duplicated.
func (w *Workflow) AddVerifiedCandidates(ctx context.Context, jobID int64, items []VerifiedProfile) (AddResult, error) {
	if _, err := w.loadJob(ctx, jobID); err != nil {
		return AddResult{}, err
	}

	var out AddResult
	for _, item := range items {
		cand, err := w.store.UpsertCandidate(ctx, item.Candidate)
		if err != nil {
			out.Errors++
			w.logger.Warn("upsert candidate failed", zap.String("linkedin_id", item.Candidate.LinkedInID), zap.Error(err))
			continue
		}

		patch := notes.Notes{Verification: &notes.Verification{
			Verdict:       string(item.Result.Verdict),
			Explanation:   item.Result.Explanation,
			Components:    item.Result.Components,
			MissingFields: item.Result.MissingFields,
		}}
		if item.ForcedIdentifier != "" {
			patch.ForcedTest = &notes.ForcedTestMarker{Identifier: item.ForcedIdentifier, ForcedScore: w.policy.ForcedScore}
		}

		match, err := w.store.CreateCandidateMatch(ctx, model.Match{
			JobID:       jobID,
			CandidateID: cand.ID,
			Score:       item.Result.Score,
			Status:      item.Status,
			Notes:       patch,
		})
		if err != nil {
			out.Errors++
			w.logger.Warn("create match failed",
				zap.Int64(logger.FieldJobID, jobID),
				zap.Int64(logger.FieldCandidateID, cand.ID),
				zap.Error(err),
			)
			continue
		}
		out.Added = append(out.Added, model.CandidateMatch{Candidate: cand, Match: match})
	}
	return out, nil
}

// JobRunOptions tune ExecuteJobWorkflow.
type JobRunOptions struct {
	Limit int
	// ConfirmOutreach is asked before any message is sent. Nil means yes.
	ConfirmOutreach func(targets int) bool
}

type JobRunSummary struct {
	JobID           int64          `json:"job_id"`
	Searched        int            `json:"searched"`
	Verified        int            `json:"verified"`
	NeedsResume     int            `json:"needs_resume"`
	Rejected        int            `json:"rejected"`
	Added           int            `json:"added"`
	Outreached      int            `json:"outreached"`
	OutreachSent    int            `json:"outreach_sent"`
	Pending         int            `json:"pending_connection"`
	Failed          int            `json:"failed"`
	ConversationIDs []int64        `json:"conversation_ids"`
	Outreach        OutreachResult `json:"outreach"`
	Skipped         bool           `json:"outreach_skipped,omitempty"`
}

// ExecuteJobWorkflow runs source, verify, add and outreach for one job.
func (w *Workflow) ExecuteJobWorkflow(ctx context.Context, jobID int64, opts JobRunOptions) (JobRunSummary, error) {
	summary := JobRunSummary{JobID: jobID}

	profiles, err := w.SourceCandidates(ctx, jobID, opts.Limit)
	if err != nil {
		return summary, err
	}
	summary.Searched = len(profiles)

	verified, err := w.VerifyProfiles(ctx, jobID, profiles)
	if err != nil {
		return summary, err
	}
	summary.Verified = verified.Verified
	summary.NeedsResume = verified.NeedsResume
	summary.Rejected = verified.Rejected

	// Only candidates that may be contacted are stored for the job.
	eligible := make([]VerifiedProfile, 0, len(verified.Items))
	for _, item := range verified.Items {
		if w.outreachEligible(item.Status) {
			eligible = append(eligible, item)
		}
	}
	added, err := w.AddVerifiedCandidates(ctx, jobID, eligible)
	if err != nil {
		return summary, err
	}
	summary.Added = len(added.Added)

	var ids []int64
	for _, cm := range added.Added {
		ids = append(ids, cm.Candidate.ID)
	}
	if len(ids) == 0 {
		return summary, nil
	}
	if opts.ConfirmOutreach != nil && !opts.ConfirmOutreach(len(ids)) {
		summary.Skipped = true
		return summary, nil
	}

	res, err := w.OutreachCandidates(ctx, jobID, ids)
	if err != nil {
		return summary, err
	}
	summary.Outreach = res
	summary.Outreached = res.Total
	summary.OutreachSent = res.Sent
	summary.Pending = res.PendingConnection
	summary.Failed = res.Failed
	summary.ConversationIDs = res.ConversationIDs

	w.logger.Info("job workflow finished",
		zap.Int64(logger.FieldJobID, jobID),
		zap.Int("searched", summary.Searched),
		zap.Int("added", summary.Added),
		zap.Int("sent", summary.OutreachSent),
		zap.Int("pending", summary.Pending),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (w *Workflow) outreachEligible(s funnel.Status) bool {
	if s == funnel.StatusVerified {
		return true
	}
	return w.policy.ContactAll && s == funnel.StatusNeedsResume
}

func (w *Workflow) loadJob(ctx context.Context, jobID int64) (model.Job, error) {
	if jobID <= 0 {
		return model.Job{}, fmt.Errorf("job id %d: %w", jobID, ErrInvalidArgument)
	}
	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Job{}, fmt.Errorf("job %d: %w", jobID, err)
		}
		return model.Job{}, fmt.Errorf("loading job %d: %w", jobID, err)
	}
	return job, nil
}
