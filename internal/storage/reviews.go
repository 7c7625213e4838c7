package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/devilanirudh/play-store-reviews-scraper-playwright/pkg/types"
)

const (
	defaultUserName     = "Anonymous"
	defaultContent      = "No review content provided"
	defaultReplyContent = "No reply content"

	maxUserNameLen = 255
	maxContentLen  = 10000
	maxReplyLen    = 10000

	// The feed renders dates like "January 3, 2025".
	reviewedAtLayout = "January 2, 2006"
)

// On identifier conflict the identity columns user_name and reviewed_at stay
// as first written; only the mutable review fields are overwritten.
const reviewUpsertSQL = `
    INSERT INTO reviews (
        review_id, app_id, user_name, content,
        score, thumbs_up_count, reviewed_at,
        reply_content, replied_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    ON CONFLICT (review_id) DO UPDATE SET
        content = EXCLUDED.content,
        score = EXCLUDED.score,
        thumbs_up_count = EXCLUDED.thumbs_up_count,
        reply_content = EXCLUDED.reply_content,
        replied_at = EXCLUDED.replied_at
`

// ReviewStore normalizes and idempotently persists harvested reviews using
// the review connection pool.
type ReviewStore struct {
	store *Store
}

// NewReviewStore constructs a review store on top of the shared pools.
func NewReviewStore(store *Store) *ReviewStore {
	return &ReviewStore{store: store}
}

// Persist normalizes and upserts the batch inside one transaction, assigning
// each review a fresh identifier, and returns the number of rows written.
// A failure on any row rolls back the whole batch.
func (r *ReviewStore) Persist(ctx context.Context, appID string, reviews []types.ExtractedReview) (int, error) {
	if r == nil || r.store == nil || r.store.reviewDB == nil {
		return 0, fmt.Errorf("review store not initialised")
	}

	count, err := r.persistBatch(ctx, appID, reviews)
	if err != nil {
		if r.store.cfg.AutoMigrate && isUndefinedTableErr(err) {
			if schemaErr := r.store.ensureSchema(ctx); schemaErr != nil {
				return 0, fmt.Errorf("ensure schema: %w", schemaErr)
			}
			return r.persistBatch(ctx, appID, reviews)
		}
		return 0, err
	}
	return count, nil
}

func (r *ReviewStore) persistBatch(ctx context.Context, appID string, reviews []types.ExtractedReview) (int, error) {
	tx, err := r.store.reviewDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin review batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, reviewUpsertSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare review upsert: %w", err)
	}
	defer stmt.Close()

	for i, raw := range reviews {
		review := normalizeReview(appID, raw)
		review.ReviewID = uuid.NewString()
		if _, err := stmt.ExecContext(ctx,
			review.ReviewID,
			review.AppID,
			review.UserName,
			review.Content,
			review.Score,
			review.ThumbsUpCount,
			nullableTime(review.ReviewedAt),
			review.ReplyContent,
			nullableTime(review.RepliedAt),
		); err != nil {
			return 0, fmt.Errorf("upsert review %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit review batch: %w", err)
	}
	return len(reviews), nil
}

// normalizeReview applies the documented defaults, coercions, and truncation
// bounds to a partial extracted entity. Truncation happens after defaulting.
func normalizeReview(appID string, in types.ExtractedReview) types.Review {
	out := types.Review{
		AppID:        appID,
		UserName:     defaultUserName,
		Content:      defaultContent,
		ReplyContent: defaultReplyContent,
	}

	if in.UserName != nil && *in.UserName != "" {
		out.UserName = *in.UserName
	}
	if in.Content != nil && *in.Content != "" {
		out.Content = *in.Content
	}
	if in.RepliedContent != nil && *in.RepliedContent != "" {
		out.ReplyContent = *in.RepliedContent
	}

	if in.Score != nil {
		if score, err := strconv.Atoi(*in.Score); err == nil {
			out.Score = score
		}
	}
	if in.ThumbsUpCount != nil {
		if thumbs, err := strconv.Atoi(*in.ThumbsUpCount); err == nil {
			out.ThumbsUpCount = thumbs
		}
	}
	if in.ReviewedAt != nil {
		if ts, err := time.Parse(reviewedAtLayout, *in.ReviewedAt); err == nil {
			out.ReviewedAt = &ts
		}
	}

	out.UserName = truncate(out.UserName, maxUserNameLen)
	out.Content = truncate(out.Content, maxContentLen)
	out.ReplyContent = truncate(out.ReplyContent, maxReplyLen)
	return out
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
