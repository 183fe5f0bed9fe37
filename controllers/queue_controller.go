package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"go_jobs_backend/models"
	"go_jobs_backend/queue"

	"github.com/gin-gonic/gin"
)

// QueueController handles queue inspection and operator job actions
type QueueController struct {
	store queue.Store
}

// NewQueueController creates a new queue controller
func NewQueueController(store queue.Store) *QueueController {
	return &QueueController{store: store}
}

// GetCounts returns per-state job counts for one queue
// GET /api/v1/queues/:name/counts
func (qc *QueueController) GetCounts(c *gin.Context) {
	name := c.Param("name")

	counts, err := qc.store.CountsByState(name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": name, "counts": counts})
}

// GetJobs lists jobs in a queue, optionally filtered by state
// GET /api/v1/queues/:name/jobs?state=failed&limit=50
func (qc *QueueController) GetJobs(c *gin.Context) {
	name := c.Param("name")
	state := models.JobState(c.Query("state"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	jobs, err := qc.store.Jobs(name, state, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": name, "jobs": jobs})
}

// RetryJob resets a terminal-failed job and returns it to the queue
// POST /api/v1/queues/:name/jobs/:id/retry
func (qc *QueueController) RetryJob(c *gin.Context) {
	name := c.Param("name")
	jobID := c.Param("id")

	err := qc.store.Retry(name, jobID)
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, queue.ErrNotRetryable):
		c.JSON(http.StatusConflict, gin.H{"error": "Job is not in a terminal failed state"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retry job"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "requeued", "job_id": jobID})
	}
}
