package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/storage"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/pkg/types"
)

// Deadline for a terminal status write issued after the job's own context
// has failed.
const statusWriteTimeout = 10 * time.Second

// Acquirer produces the final markup snapshot of an app's review feed.
type Acquirer interface {
	Acquire(ctx context.Context, appID string) (string, error)
}

// Extractor turns a snapshot into partial review entities.
type Extractor interface {
	Extract(markup string) ([]types.ExtractedReview, error)
}

// Persister stores a batch of reviews and reports how many were written.
type Persister interface {
	Persist(ctx context.Context, appID string, reviews []types.ExtractedReview) (int, error)
}

// Tracker records job lifecycle transitions. All writes are best-effort.
type Tracker interface {
	MarkPending(ctx context.Context, jobID string) storage.StatusResult
	MarkCompleted(ctx context.Context, jobID string, totalReviews int) storage.StatusResult
	MarkFailed(ctx context.Context, jobID, errorMessage string) storage.StatusResult
}

// Pipeline runs one harvesting job end to end: acquire markup, extract
// reviews, persist them, and record the terminal job state. It is the sole
// queue-facing entry point.
type Pipeline struct {
	acquirer       Acquirer
	extractor      Extractor
	persister      Persister
	tracker        Tracker
	persistTimeout time.Duration
	logger         *slog.Logger
}

// New wires the pipeline stages together.
func New(acquirer Acquirer, extractor Extractor, persister Persister, tracker Tracker, persistTimeout time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		acquirer:       acquirer,
		extractor:      extractor,
		persister:      persister,
		tracker:        tracker,
		persistTimeout: persistTimeout,
		logger:         logger,
	}
}

// Run executes a single job. Acquisition and persistence faults are fatal to
// the job and recorded as a failed terminal state; status-write faults are
// soft and only logged. Failed jobs are not retried here; resubmission with
// a new job id is an operator action.
func (p *Pipeline) Run(ctx context.Context, appID, jobID string) error {
	logger := p.logger.With("job_id", jobID, "app_id", appID)
	logger.Info("job started")

	p.report(logger, p.tracker.MarkPending(ctx, jobID), "pending")

	markup, err := p.acquirer.Acquire(ctx, appID)
	if err != nil {
		return p.fail(logger, jobID, fmt.Errorf("acquire markup: %w", err))
	}
	logger.Debug("markup acquired", "html_bytes", len(markup))

	reviews, err := p.extractor.Extract(markup)
	if err != nil {
		return p.fail(logger, jobID, fmt.Errorf("extract reviews: %w", err))
	}
	logger.Info("reviews extracted", "count", len(reviews))

	persistCtx := ctx
	if p.persistTimeout > 0 {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(ctx, p.persistTimeout)
		defer cancel()
	}
	count, err := p.persister.Persist(persistCtx, appID, reviews)
	if err != nil {
		return p.fail(logger, jobID, fmt.Errorf("persist reviews: %w", err))
	}

	p.report(logger, p.tracker.MarkCompleted(ctx, jobID, count), "completed")
	logger.Info("job completed", "total_reviews", count)
	return nil
}

// fail records the failed terminal state on a detached context, since the
// job context itself may be the reason the job is failing.
func (p *Pipeline) fail(logger *slog.Logger, jobID string, cause error) error {
	logger.Error("job failed", "error", cause)
	writeCtx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
	defer cancel()
	p.report(logger, p.tracker.MarkFailed(writeCtx, jobID, cause.Error()), "failed")
	return cause
}

func (p *Pipeline) report(logger *slog.Logger, result storage.StatusResult, status string) {
	if !result.OK {
		logger.Warn("status write degraded", "status", status, "error", result.Err)
	}
}
