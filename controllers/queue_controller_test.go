package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"go_jobs_backend/models"
	"go_jobs_backend/queue"
)

func queueRouter(store queue.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	qc := NewQueueController(store)
	router := gin.New()
	router.GET("/queues/:name/counts", qc.GetCounts)
	router.GET("/queues/:name/jobs", qc.GetJobs)
	router.POST("/queues/:name/jobs/:id/retry", qc.RetryJob)
	return router
}

func TestGetCounts(t *testing.T) {
	store := queue.NewMemoryStore()
	store.Enqueue("candles", "collect-candles", nil, queue.Options{})
	store.Enqueue("candles", "collect-candles", nil, queue.Options{})
	router := queueRouter(store)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/queues/candles/counts", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Queue  string             `json:"queue"`
		Counts models.QueueCounts `json:"counts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response decode error: %v", err)
	}
	if body.Queue != "candles" || body.Counts.Waiting != 2 {
		t.Fatalf("body = %+v", body)
	}
}

func TestGetJobsFiltersByState(t *testing.T) {
	store := queue.NewMemoryStore()
	store.Enqueue("candles", "collect-candles", nil, queue.Options{})
	done, _ := store.Enqueue("candles", "collect-candles", nil, queue.Options{})
	store.Dequeue("candles", 2)
	store.Complete(done.JobID, "ok")
	router := queueRouter(store)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/queues/candles/jobs?state=completed", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Jobs []models.Job `json:"jobs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response decode error: %v", err)
	}
	if len(body.Jobs) != 1 || body.Jobs[0].State != models.JobCompleted {
		t.Fatalf("jobs = %+v", body.Jobs)
	}
}

func TestRetryJobStatusMapping(t *testing.T) {
	store := queue.NewMemoryStore()

	dead, _ := store.Enqueue("candles", "collect-candles", nil, queue.Options{MaxAttempts: 1})
	store.Dequeue("candles", 1)
	store.Fail(dead.JobID, errors.New("boom"))

	waiting, _ := store.Enqueue("candles", "collect-candles", nil, queue.Options{})

	router := queueRouter(store)

	tests := []struct {
		name  string
		jobID string
		want  int
	}{
		{"terminal failed job", dead.JobID, http.StatusOK},
		{"waiting job", waiting.JobID, http.StatusConflict},
		{"unknown job", "no-such-id", http.StatusNotFound},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/queues/candles/jobs/"+tt.jobID+"/retry", nil))
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body: %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	stored, _ := store.Job(dead.JobID)
	if stored.State != models.JobWaiting {
		t.Fatalf("retried job state = %s, want waiting", stored.State)
	}
}
