package api

// ScrapeRequest is the submission payload for a harvesting job.
type ScrapeRequest struct {
	AppID string `json:"app_id"`
}

// ScrapeResponse acknowledges an accepted harvesting job.
type ScrapeResponse struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}
