package interview

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/spigell/tener-recruiter/internal/model"
	"github.com/spigell/tener-recruiter/internal/store"
	"go.uber.org/zap"
)

type AssessmentStore interface {
	GetJobAssessment(ctx context.Context, jobID int64) (model.JobAssessment, error)
	SaveJobAssessment(ctx context.Context, a model.JobAssessment) error
}

type AssessmentPreparer interface {
	PrepareAssessment(ctx context.Context, jobID int64) (Assessment, error)
}

// AssessmentCache prepares one assessment per job and reuses it until the
// job description changes.
type AssessmentCache struct {
	store    AssessmentStore
	preparer AssessmentPreparer
	logger   *zap.Logger
	now      func() time.Time
}

func NewAssessmentCache(st AssessmentStore, preparer AssessmentPreparer, logger *zap.Logger) *AssessmentCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentCache{store: st, preparer: preparer, logger: logger, now: time.Now}
}

// JDHash fingerprints the parts of a job that questions are derived from.
func JDHash(job model.Job) string {
	sum := sha256.Sum256([]byte(job.Title + "\n" + job.JDText))
	return hex.EncodeToString(sum[:])
}

// Ensure returns the job's assessment, preparing it when missing or stale.
// prepared is true when the service was called.
func (c *AssessmentCache) Ensure(ctx context.Context, job model.Job) (a model.JobAssessment, prepared bool, err error) {
	hash := JDHash(job)

	existing, err := c.store.GetJobAssessment(ctx, job.ID)
	switch {
	case err == nil && existing.JDHash == hash && existing.AssessmentID != "":
		return existing, false, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return model.JobAssessment{}, false, fmt.Errorf("load job assessment: %w", err)
	}

	remote, err := c.preparer.PrepareAssessment(ctx, job.ID)
	if err != nil {
		return model.JobAssessment{}, false, fmt.Errorf("prepare job assessment: %w", err)
	}
	if remote.AssessmentID == "" {
		remote.AssessmentID = fmt.Sprintf("job-%d-%s", job.ID, hash[:12])
	}

	a = model.JobAssessment{
		JobID:        job.ID,
		AssessmentID: remote.AssessmentID,
		Name:         remote.Name,
		JDHash:       hash,
		PreparedAt:   c.now().UTC(),
	}
	if err := c.store.SaveJobAssessment(ctx, a); err != nil {
		return model.JobAssessment{}, false, fmt.Errorf("save job assessment: %w", err)
	}

	c.logger.Info("job assessment prepared",
		zap.Int64("job_id", job.ID),
		zap.String("assessment_id", a.AssessmentID),
		zap.Bool("regenerated", existing.AssessmentID != ""),
	)
	return a, true, nil
}
