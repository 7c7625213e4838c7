package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/queue"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/internal/storage"
	"github.com/devilanirudh/play-store-reviews-scraper-playwright/pkg/types"
)

type fakeJobStore struct {
	createErr error
	created   []string
	jobs      map[string]types.Job
}

func (f *fakeJobStore) Create(ctx context.Context, appID string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	id := "job-" + appID
	f.created = append(f.created, appID)
	return id, nil
}

func (f *fakeJobStore) Get(ctx context.Context, jobID string) (types.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return types.Job{}, storage.ErrJobNotFound
	}
	return job, nil
}

type fakeReviewLister struct {
	result storage.ReviewListResult
	err    error
	params storage.ReviewListParams
	appID  string
}

func (f *fakeReviewLister) ListReviews(ctx context.Context, appID string, params storage.ReviewListParams) (storage.ReviewListResult, error) {
	f.appID = appID
	f.params = params
	return f.result, f.err
}

func newTestServer(jobs *fakeJobStore, reviews *fakeReviewLister, q queue.Queue) *Server {
	if q == nil {
		q = queue.NewMemoryQueue(8)
	}
	return NewServer(jobs, reviews, q, nil)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeJobStore{}, &fakeReviewLister{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestScrapeCreatesJobAndEnqueues(t *testing.T) {
	jobs := &fakeJobStore{}
	q := queue.NewMemoryQueue(8)
	srv := newTestServer(jobs, &fakeReviewLister{}, q)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader(`{"app_id":"com.example.app"}`))
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ScrapeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.JobID == "" || resp.Status != "started" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Message != "Review scraping has started" {
		t.Errorf("unexpected message %q", resp.Message)
	}

	task, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("expected task enqueued: %v", err)
	}
	if task.AppID != "com.example.app" || task.JobID != resp.JobID {
		t.Errorf("unexpected task %+v", task)
	}
}

func TestScrapeRejectsBadPayload(t *testing.T) {
	srv := newTestServer(&fakeJobStore{}, &fakeReviewLister{}, nil)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing app id", `{}`},
		{"blank app id", `{"app_id":"   "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader(tc.body))
			srv.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestScrapeMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&fakeJobStore{}, &fakeReviewLister{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scrape", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("expected Allow header POST, got %q", allow)
	}
}

func TestScrapeCreateFailure(t *testing.T) {
	jobs := &fakeJobStore{createErr: errors.New("db down")}
	srv := newTestServer(jobs, &fakeReviewLister{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader(`{"app_id":"com.example.app"}`))
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestJobStatus(t *testing.T) {
	total := 42
	jobs := &fakeJobStore{jobs: map[string]types.Job{
		"job-123": {
			JobID:        "job-123",
			AppID:        "com.example.app",
			Status:       types.JobStatusCompleted,
			TotalReviews: &total,
		},
	}}
	srv := newTestServer(jobs, &fakeReviewLister{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scrape/job-123/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var job types.Job
	if err := json.NewDecoder(rec.Body).Decode(&job); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if job.JobID != "job-123" || job.Status != types.JobStatusCompleted {
		t.Errorf("unexpected job %+v", job)
	}
	if job.TotalReviews == nil || *job.TotalReviews != 42 {
		t.Errorf("expected total 42, got %v", job.TotalReviews)
	}
}

func TestJobStatusNotFound(t *testing.T) {
	srv := newTestServer(&fakeJobStore{jobs: map[string]types.Job{}}, &fakeReviewLister{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scrape/missing/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestJobStatusBadPath(t *testing.T) {
	srv := newTestServer(&fakeJobStore{}, &fakeReviewLister{}, nil)

	for _, path := range []string{"/api/scrape/", "/api/scrape/job-1", "/api/scrape/job-1/history"} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("path %s: expected 404 or 405, got %d", path, rec.Code)
		}
	}
}

func TestAppReviews(t *testing.T) {
	lister := &fakeReviewLister{result: storage.ReviewListResult{
		AppID:    "com.example.app",
		Total:    1,
		Page:     2,
		PageSize: 10,
		Items:    []types.Review{{ReviewID: "r1", UserName: "Alice"}},
	}}
	srv := newTestServer(&fakeJobStore{}, lister, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/apps/com.example.app/reviews?page=2&page_size=10&search=great", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if lister.appID != "com.example.app" {
		t.Errorf("expected app id passed through, got %q", lister.appID)
	}
	if lister.params.Page != 2 || lister.params.PageSize != 10 || lister.params.Search != "great" {
		t.Errorf("unexpected params %+v", lister.params)
	}
	var result storage.ReviewListResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(result.Items) != 1 || result.Items[0].ReviewID != "r1" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestAppReviewsBadPath(t *testing.T) {
	srv := newTestServer(&fakeJobStore{}, &fakeReviewLister{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/apps/com.example.app", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
