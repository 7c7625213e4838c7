package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"

	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/config"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/pkg/types"
)

// startPostgres runs a throwaway Postgres container and opens a Store against
// it. Tests are skipped when no Docker daemon is reachable.
func startPostgres(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	pool.MaxWait = 2 * time.Minute

	resource, err := pool.Run("postgres", "16-alpine", []string{
		"POSTGRES_USER=harvester",
		"POSTGRES_PASSWORD=harvester",
		"POSTGRES_DB=playreviews",
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })
	_ = resource.Expire(300)

	cfg := config.SQLConfig{
		Driver: "postgres",
		DSN: fmt.Sprintf("postgres://harvester:harvester@%s/playreviews?sslmode=disable",
			resource.GetHostPort("5432/tcp")),
		ReviewPool:  config.PoolConfig{MaxOpenConns: 4, MaxIdleConns: 2},
		StatusPool:  config.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1},
		AutoMigrate: true,
	}

	var store *Store
	if err := pool.Retry(func() error {
		s, err := Open(cfg)
		if err != nil {
			return err
		}
		store = s
		return nil
	}); err != nil {
		t.Fatalf("postgres never became ready: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestReviewUpsertKeepsIdentityColumns(t *testing.T) {
	store := startPostgres(t)
	ctx := context.Background()

	firstSeen := time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC)
	secondSeen := time.Date(2025, time.February, 10, 0, 0, 0, 0, time.UTC)
	repliedAt := time.Date(2025, time.February, 11, 0, 0, 0, 0, time.UTC)

	_, err := store.reviewDB.ExecContext(ctx, reviewUpsertSQL,
		"review-1", "com.example.app", "Alice", "first body",
		5, 1, firstSeen, "first reply", nil)
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	_, err = store.reviewDB.ExecContext(ctx, reviewUpsertSQL,
		"review-1", "com.example.app", "Bob", "second body",
		2, 9, secondSeen, "second reply", repliedAt)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	var rowCount int
	if err := store.reviewDB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reviews WHERE review_id = $1`, "review-1").Scan(&rowCount); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if rowCount != 1 {
		t.Fatalf("expected a single row after conflicting writes, got %d", rowCount)
	}

	var (
		userName   string
		content    string
		score      int
		thumbs     int
		reviewedAt time.Time
		reply      string
		replied    time.Time
	)
	err = store.reviewDB.QueryRowContext(ctx, `
        SELECT user_name, content, score, thumbs_up_count, reviewed_at, reply_content, replied_at
        FROM reviews WHERE review_id = $1`, "review-1").
		Scan(&userName, &content, &score, &thumbs, &reviewedAt, &reply, &replied)
	if err != nil {
		t.Fatalf("fetch row failed: %v", err)
	}

	if userName != "Alice" {
		t.Errorf("expected user_name immutable across conflict, got %q", userName)
	}
	if !reviewedAt.UTC().Equal(firstSeen) {
		t.Errorf("expected reviewed_at immutable across conflict, got %v", reviewedAt)
	}
	if content != "second body" {
		t.Errorf("expected content from second write, got %q", content)
	}
	if score != 2 || thumbs != 9 {
		t.Errorf("expected score/thumbs from second write, got %d/%d", score, thumbs)
	}
	if reply != "second reply" {
		t.Errorf("expected reply from second write, got %q", reply)
	}
	if !replied.UTC().Equal(repliedAt) {
		t.Errorf("expected replied_at from second write, got %v", replied)
	}
}

func TestStorePersistAndJobLifecycle(t *testing.T) {
	store := startPostgres(t)
	ctx := context.Background()

	reviews := NewReviewStore(store)
	count, err := reviews.Persist(ctx, "com.example.app", []types.ExtractedReview{
		{
			UserName:   strPtr("Dana"),
			Content:    strPtr("Solid app"),
			Score:      strPtr("4"),
			ReviewedAt: strPtr("January 3, 2025"),
		},
		{},
	})
	if err != nil {
		t.Fatalf("persist failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 rows written, got %d", count)
	}

	listed, err := reviews.ListReviews(ctx, "com.example.app", ReviewListParams{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if listed.Total != 2 || len(listed.Items) != 2 {
		t.Fatalf("expected both rows listed, got total=%d items=%d", listed.Total, len(listed.Items))
	}
	// reviewed_at DESC NULLS LAST puts the dated review first, the
	// all-defaults review last.
	if listed.Items[0].UserName != "Dana" || listed.Items[0].Score != 4 {
		t.Errorf("unexpected first item %+v", listed.Items[0])
	}
	defaulted := listed.Items[1]
	if defaulted.UserName != "Anonymous" || defaulted.Content != "No review content provided" || defaulted.ReplyContent != "No reply content" {
		t.Errorf("expected stored defaults, got %+v", defaulted)
	}

	tracker := NewJobTracker(store, nil)
	jobID, err := tracker.Create(ctx, "com.example.app")
	if err != nil {
		t.Fatalf("create job failed: %v", err)
	}
	job, err := tracker.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if job.Status != types.JobStatusPending || job.CompletedAt != nil {
		t.Errorf("expected fresh pending job, got %+v", job)
	}

	if result := tracker.MarkCompleted(ctx, jobID, 2); !result.OK {
		t.Fatalf("mark completed failed: %v", result.Err)
	}
	job, err = tracker.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if job.Status != types.JobStatusCompleted || job.CompletedAt == nil {
		t.Errorf("expected completed job with timestamp, got %+v", job)
	}
	if job.TotalReviews == nil || *job.TotalReviews != 2 {
		t.Errorf("expected total 2, got %v", job.TotalReviews)
	}

	// A later failed write keeps the recorded total via COALESCE.
	if result := tracker.MarkFailed(ctx, jobID, "manual retry"); !result.OK {
		t.Fatalf("mark failed failed: %v", result.Err)
	}
	job, err = tracker.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("get job failed: %v", err)
	}
	if job.TotalReviews == nil || *job.TotalReviews != 2 {
		t.Errorf("expected total retained across status write, got %v", job.TotalReviews)
	}
	if job.ErrorMessage == nil || *job.ErrorMessage != "manual retry" {
		t.Errorf("expected error message recorded, got %v", job.ErrorMessage)
	}

	if _, err := tracker.Get(ctx, "no-such-job"); err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}
