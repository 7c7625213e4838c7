package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/devilanirudh/play-store-reviews-scraper-playwright/pkg/types"
)

// ErrJobNotFound is returned when a job id has no record.
var ErrJobNotFound = errors.New("job not found")

// StatusResult reports the outcome of a best-effort status write. Status
// writes never abort the pipeline; callers inspect the result and log.
type StatusResult struct {
	OK  bool
	Err error
}

// JobTracker owns the job lifecycle records in scrape_jobs, writing through
// the status connection pool.
type JobTracker struct {
	store  *Store
	logger *slog.Logger
}

// NewJobTracker constructs a tracker on top of the shared pools.
func NewJobTracker(store *Store, logger *slog.Logger) *JobTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobTracker{store: store, logger: logger}
}

// Create inserts a new job in the pending state and returns its identifier.
func (t *JobTracker) Create(ctx context.Context, appID string) (string, error) {
	if t == nil || t.store == nil || t.store.statusDB == nil {
		return "", fmt.Errorf("job tracker not initialised")
	}
	jobID := uuid.NewString()
	now := time.Now().UTC()
	_, err := t.store.statusDB.ExecContext(ctx, `
        INSERT INTO scrape_jobs (job_id, app_id, status, started_at, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, jobID, appID, types.JobStatusPending, now, now)
	if err != nil {
		if t.store.cfg.AutoMigrate && isUndefinedTableErr(err) {
			if schemaErr := t.store.ensureSchema(ctx); schemaErr != nil {
				return "", fmt.Errorf("ensure schema: %w", schemaErr)
			}
			if _, retryErr := t.store.statusDB.ExecContext(ctx, `
                INSERT INTO scrape_jobs (job_id, app_id, status, started_at, created_at)
                VALUES ($1, $2, $3, $4, $5)
            `, jobID, appID, types.JobStatusPending, now, now); retryErr == nil {
				return jobID, nil
			}
		}
		return "", fmt.Errorf("insert job: %w", err)
	}
	return jobID, nil
}

// Get returns the job record, or ErrJobNotFound.
func (t *JobTracker) Get(ctx context.Context, jobID string) (types.Job, error) {
	if t == nil || t.store == nil || t.store.statusDB == nil {
		return types.Job{}, fmt.Errorf("job tracker not initialised")
	}
	row := t.store.statusDB.QueryRowContext(ctx, `
        SELECT job_id, app_id, status, started_at, completed_at, total_reviews, error_message, created_at
        FROM scrape_jobs
        WHERE job_id = $1
    `, jobID)

	var (
		job          types.Job
		completedAt  sql.NullTime
		totalReviews sql.NullInt64
		errorMessage sql.NullString
	)
	if err := row.Scan(&job.JobID, &job.AppID, &job.Status, &job.StartedAt,
		&completedAt, &totalReviews, &errorMessage, &job.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Job{}, ErrJobNotFound
		}
		return types.Job{}, fmt.Errorf("fetch job: %w", err)
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	if totalReviews.Valid {
		total := int(totalReviews.Int64)
		job.TotalReviews = &total
	}
	if errorMessage.Valid {
		job.ErrorMessage = &errorMessage.String
	}
	return job, nil
}

// MarkPending records that the pipeline has picked the job up.
func (t *JobTracker) MarkPending(ctx context.Context, jobID string) StatusResult {
	return t.writeStatus(ctx, jobID, types.JobStatusPending, nil, nil)
}

// MarkCompleted records terminal success with the harvested total.
func (t *JobTracker) MarkCompleted(ctx context.Context, jobID string, totalReviews int) StatusResult {
	return t.writeStatus(ctx, jobID, types.JobStatusCompleted, nil, &totalReviews)
}

// MarkFailed records terminal failure with the fault description.
func (t *JobTracker) MarkFailed(ctx context.Context, jobID, errorMessage string) StatusResult {
	return t.writeStatus(ctx, jobID, types.JobStatusFailed, &errorMessage, nil)
}

// writeStatus is idempotent per status: repeated terminal writes overwrite
// rather than being rejected. Failures are converted into a soft result so a
// transient tracker fault never crashes the pipeline.
func (t *JobTracker) writeStatus(ctx context.Context, jobID, status string, errorMessage *string, totalReviews *int) StatusResult {
	if t == nil || t.store == nil || t.store.statusDB == nil {
		return StatusResult{Err: fmt.Errorf("job tracker not initialised")}
	}

	var completedAt interface{}
	if status == types.JobStatusCompleted || status == types.JobStatusFailed {
		completedAt = time.Now().UTC()
	}

	_, err := t.store.statusDB.ExecContext(ctx, `
        UPDATE scrape_jobs
        SET status = $1,
            error_message = $2,
            total_reviews = COALESCE($3, total_reviews),
            completed_at = $4
        WHERE job_id = $5
    `, status, nullableString(errorMessage), nullableInt(totalReviews), completedAt, jobID)
	if err != nil {
		t.logger.Error("job status write failed", "job_id", jobID, "status", status, "error", err)
		return StatusResult{Err: err}
	}
	return StatusResult{OK: true}
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(n *int) interface{} {
	if n == nil {
		return nil
	}
	return *n
}
