package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/queue"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/storage"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/pkg/types"
)

// JobStore is the tracker surface the HTTP layer needs.
type JobStore interface {
	Create(ctx context.Context, appID string) (string, error)
	Get(ctx context.Context, jobID string) (types.Job, error)
}

// ReviewLister serves stored reviews for an app.
type ReviewLister interface {
	ListReviews(ctx context.Context, appID string, params storage.ReviewListParams) (storage.ReviewListResult, error)
}

// Server exposes the HTTP API for submitting and querying harvest jobs.
type Server struct {
	jobs    JobStore
	reviews ReviewLister
	queue   queue.Queue
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewServer wires handlers onto an HTTP mux.
func NewServer(jobs JobStore, reviews ReviewLister, taskQueue queue.Queue, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		jobs:    jobs,
		reviews: reviews,
		queue:   taskQueue,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/scrape", s.handleScrape)
	s.mux.HandleFunc("/api/scrape/", s.handleScrapeByID)
	s.mux.HandleFunc("/api/apps/", s.handleAppReviews)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json payload: %v", err), http.StatusBadRequest)
		return
	}
	req.AppID = strings.TrimSpace(req.AppID)
	if req.AppID == "" {
		http.Error(w, "app_id is required", http.StatusBadRequest)
		return
	}

	jobID, err := s.jobs.Create(r.Context(), req.AppID)
	if err != nil {
		s.logger.Error("create job failed", "app_id", req.AppID, "error", err)
		http.Error(w, "failed to create job", http.StatusInternalServerError)
		return
	}

	task := queue.Task{JobID: jobID, AppID: req.AppID, EnqueuedAt: time.Now().UTC()}
	if err := s.queue.Enqueue(r.Context(), task); err != nil {
		s.logger.Error("enqueue failed", "job_id", jobID, "error", err)
		http.Error(w, "failed to enqueue job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, ScrapeResponse{
		JobID:   jobID,
		Status:  "started",
		Message: "Review scraping has started",
	})
}

func (s *Server) handleScrapeByID(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/scrape/"), "/")
	if trimmed == "" {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(trimmed, "/")
	jobID, err := url.PathUnescape(parts[0])
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}
	if len(parts) != 2 || parts[1] != "status" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("fetch job failed", "job_id", jobID, "error", err)
		http.Error(w, "failed to fetch job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleAppReviews(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/apps/"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[1] != "reviews" {
		http.NotFound(w, r)
		return
	}
	appID, err := url.PathUnescape(parts[0])
	if err != nil || appID == "" {
		http.Error(w, "invalid app id", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.reviews == nil {
		http.Error(w, "review listing unavailable", http.StatusServiceUnavailable)
		return
	}

	params := storage.ReviewListParams{
		Page:     parseIntParam(r, "page"),
		PageSize: parseIntParam(r, "page_size"),
		Search:   r.URL.Query().Get("search"),
	}
	result, err := s.reviews.ListReviews(r.Context(), appID, params)
	if err != nil {
		s.logger.Error("list reviews failed", "app_id", appID, "error", err)
		http.Error(w, "failed to list reviews", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseIntParam(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	return 0
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
