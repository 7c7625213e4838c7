package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/devilanirudh/play-store-reviews-scraper-playwright/pkg/types"
)

// ReviewListParams controls pagination and filtering.
type ReviewListParams struct {
	Page     int
	PageSize int
	Search   string
}

// ReviewListResult wraps reviews with pagination metadata.
type ReviewListResult struct {
	AppID    string         `json:"app_id"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Items    []types.Review `json:"items"`
}

// ListReviews returns stored reviews for an app, newest first.
func (r *ReviewStore) ListReviews(ctx context.Context, appID string, params ReviewListParams) (ReviewListResult, error) {
	if r == nil || r.store == nil || r.store.reviewDB == nil {
		return ReviewListResult{}, fmt.Errorf("review store not initialised")
	}
	page := params.Page
	if page <= 0 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 20
	}
	search := strings.TrimSpace(params.Search)

	result := ReviewListResult{
		AppID:    appID,
		Page:     page,
		PageSize: pageSize,
	}

	var (
		totalQuery string
		totalArgs  []any
		listQuery  string
		listArgs   []any
	)
	if search != "" {
		pattern := "%" + search + "%"
		totalQuery = `
            SELECT COUNT(*) FROM reviews
            WHERE app_id = $1 AND (content ILIKE $2 OR user_name ILIKE $2)`
		totalArgs = []any{appID, pattern}
		listQuery = `
            SELECT review_id, app_id, user_name, content, score, thumbs_up_count,
                   reviewed_at, reply_content, replied_at
            FROM reviews
            WHERE app_id = $1 AND (content ILIKE $2 OR user_name ILIKE $2)
            ORDER BY reviewed_at DESC NULLS LAST
            LIMIT $3 OFFSET $4`
		listArgs = []any{appID, pattern, pageSize, (page - 1) * pageSize}
	} else {
		totalQuery = `SELECT COUNT(*) FROM reviews WHERE app_id = $1`
		totalArgs = []any{appID}
		listQuery = `
            SELECT review_id, app_id, user_name, content, score, thumbs_up_count,
                   reviewed_at, reply_content, replied_at
            FROM reviews
            WHERE app_id = $1
            ORDER BY reviewed_at DESC NULLS LAST
            LIMIT $2 OFFSET $3`
		listArgs = []any{appID, pageSize, (page - 1) * pageSize}
	}

	if err := r.store.reviewDB.QueryRowContext(ctx, totalQuery, totalArgs...).Scan(&result.Total); err != nil {
		return ReviewListResult{}, fmt.Errorf("count reviews: %w", err)
	}

	rows, err := r.store.reviewDB.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return ReviewListResult{}, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	items := make([]types.Review, 0, pageSize)
	for rows.Next() {
		var (
			review     types.Review
			userName   sql.NullString
			content    sql.NullString
			reviewedAt sql.NullTime
			reply      sql.NullString
			repliedAt  sql.NullTime
		)
		if err := rows.Scan(&review.ReviewID, &review.AppID, &userName, &content,
			&review.Score, &review.ThumbsUpCount, &reviewedAt, &reply, &repliedAt); err != nil {
			return ReviewListResult{}, fmt.Errorf("scan review: %w", err)
		}
		review.UserName = userName.String
		review.Content = content.String
		review.ReplyContent = reply.String
		if reviewedAt.Valid {
			review.ReviewedAt = &reviewedAt.Time
		}
		if repliedAt.Valid {
			review.RepliedAt = &repliedAt.Time
		}
		items = append(items, review)
	}
	if err := rows.Err(); err != nil {
		return ReviewListResult{}, err
	}
	result.Items = items
	return result, nil
}
