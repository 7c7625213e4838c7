package types

import "time"

// Job statuses as persisted in scrape_jobs.status.
const (
	JobStatusPending   = "pending"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job records the lifecycle of one review-harvesting request.
type Job struct {
	JobID        string     `json:"jobId"`
	AppID        string     `json:"appId"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt"`
	TotalReviews *int       `json:"totalReviews"`
	ErrorMessage *string    `json:"errorMessage"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Finished reports whether the job reached a terminal state.
func (j Job) Finished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// ExtractedReview is the partial, unvalidated entity produced by extraction.
// Pointer fields distinguish "absent in markup" from zero values; defaulting
// and coercion happen later, at persistence time.
type ExtractedReview struct {
	UserName       *string
	Content        *string
	Score          *string
	ThumbsUpCount  *string
	ReviewedAt     *string
	RepliedContent *string
}

// Review is the normalized, stored form of a harvested review.
type Review struct {
	ReviewID      string     `json:"reviewId"`
	AppID         string     `json:"appId"`
	UserName      string     `json:"userName"`
	Content       string     `json:"content"`
	Score         int        `json:"score"`
	ThumbsUpCount int        `json:"thumbsUpCount"`
	ReviewedAt    *time.Time `json:"reviewedAt"`
	ReplyContent  string     `json:"replyContent"`
	RepliedAt     *time.Time `json:"repliedAt"`
}
