package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"go_jobs_backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the Postgres-backed job store
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a gorm-backed job store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Enqueue creates a waiting job in the named queue
func (s *GormStore) Enqueue(queueName, jobName string, payload interface{}, opts Options) (*models.Job, error) {
	opts = opts.withDefaults()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload for %s: %w", jobName, err)
	}

	job := &models.Job{
		JobID:         uuid.NewString(),
		Queue:         queueName,
		Name:          jobName,
		Payload:       string(body),
		State:         models.JobWaiting,
		MaxAttempts:   opts.MaxAttempts,
		BackoffType:   opts.BackoffType,
		BackoffBaseMS: opts.BackoffBaseMS,
	}

	if err := s.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to enqueue %s into %s: %w", jobName, queueName, err)
	}
	return job, nil
}

// Dequeue promotes due delayed jobs, then claims up to limit waiting jobs
// in FIFO order
func (s *GormStore) Dequeue(queueName string, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	now := time.Now()

	// Promote delayed jobs whose backoff window has passed.
	if err := s.db.Model(&models.Job{}).
		Where("queue = ? AND state = ? AND not_before <= ?", queueName, models.JobDelayed, now).
		Updates(map[string]interface{}{"state": models.JobWaiting, "not_before": nil}).Error; err != nil {
		return nil, fmt.Errorf("failed to promote delayed jobs in %s: %w", queueName, err)
	}

	var jobs []*models.Job
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("queue = ? AND state = ?", queueName, models.JobWaiting).
			Order("created_at ASC, id ASC").
			Limit(limit).
			Find(&jobs).Error; err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}

		ids := make([]uint, 0, len(jobs))
		for _, j := range jobs {
			ids = append(ids, j.ID)
		}
		if err := tx.Model(&models.Job{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{"state": models.JobActive, "started_at": now}).Error; err != nil {
			return err
		}
		for _, j := range jobs {
			j.State = models.JobActive
			started := now
			j.StartedAt = &started
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue from %s: %w", queueName, err)
	}
	return jobs, nil
}

// ReportProgress stores the latest progress value, clamped to [0,100]
func (s *GormStore) ReportProgress(jobID string, percent int) error {
	res := s.db.Model(&models.Job{}).
		Where("job_id = ?", jobID).
		Update("progress", clampProgress(percent))
	if res.Error != nil {
		return fmt.Errorf("failed to report progress for job %s: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Complete moves a job to the terminal completed state
func (s *GormStore) Complete(jobID string, result string) error {
	now := time.Now()
	res := s.db.Model(&models.Job{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{
			"state":       models.JobCompleted,
			"result":      result,
			"finished_at": now,
			"progress":    100,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to complete job %s: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Fail records a failed run, delaying a retry or terminating the job
func (s *GormStore) Fail(jobID string, jobErr error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.Where("job_id = ?", jobID).First(&job).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrJobNotFound
			}
			return fmt.Errorf("failed to load job %s: %w", jobID, err)
		}

		job.Attempts++
		job.LastError = jobErr.Error()

		if job.Attempts >= job.MaxAttempts {
			now := time.Now()
			job.State = models.JobFailed
			job.FinishedAt = &now
			job.NotBefore = nil
		} else {
			until := time.Now().Add(job.BackoffDelay(job.Attempts))
			job.State = models.JobDelayed
			job.NotBefore = &until
		}

		if err := tx.Save(&job).Error; err != nil {
			return fmt.Errorf("failed to record failure for job %s: %w", jobID, err)
		}
		return nil
	})
}

// CountsByState returns per-state job counts for one queue
func (s *GormStore) CountsByState(queueName string) (models.QueueCounts, error) {
	var rows []struct {
		State models.JobState
		N     int64
	}
	err := s.db.Model(&models.Job{}).
		Select("state, count(*) as n").
		Where("queue = ?", queueName).
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return models.QueueCounts{}, fmt.Errorf("failed to count jobs in %s: %w", queueName, err)
	}

	var counts models.QueueCounts
	for _, r := range rows {
		switch r.State {
		case models.JobWaiting:
			counts.Waiting = r.N
		case models.JobActive:
			counts.Active = r.N
		case models.JobDelayed:
			counts.Delayed = r.N
		case models.JobFailed:
			counts.Failed = r.N
		case models.JobCompleted:
			counts.Completed = r.N
		}
	}
	return counts, nil
}

// Clean deletes terminal jobs finished before the cutoff
func (s *GormStore) Clean(queueName string, olderThan time.Time, state models.JobState) (int64, error) {
	if !state.IsTerminal() {
		return 0, ErrNotTerminal
	}
	res := s.db.Where("queue = ? AND state = ? AND finished_at < ?", queueName, state, olderThan).
		Delete(&models.Job{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clean %s jobs in %s: %w", state, queueName, res.Error)
	}
	return res.RowsAffected, nil
}

// Retry resets a terminal-failed job and returns it to waiting
func (s *GormStore) Retry(queueName, jobID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var job models.Job
		if err := tx.Where("queue = ? AND job_id = ?", queueName, jobID).First(&job).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrJobNotFound
			}
			return fmt.Errorf("failed to load job %s: %w", jobID, err)
		}
		if job.State != models.JobFailed {
			return ErrNotRetryable
		}

		return tx.Model(&job).Updates(map[string]interface{}{
			"state":       models.JobWaiting,
			"attempts":    0,
			"progress":    0,
			"not_before":  nil,
			"started_at":  nil,
			"finished_at": nil,
		}).Error
	})
}

// RequeueStalled returns long-active jobs to waiting without consuming
// an attempt
func (s *GormStore) RequeueStalled(queueName string, stallTimeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-stallTimeout)
	res := s.db.Model(&models.Job{}).
		Where("queue = ? AND state = ? AND started_at < ?", queueName, models.JobActive, cutoff).
		Updates(map[string]interface{}{"state": models.JobWaiting, "started_at": nil})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to requeue stalled jobs in %s: %w", queueName, res.Error)
	}
	return res.RowsAffected, nil
}

// Jobs lists jobs in a queue, optionally filtered by state, newest first
func (s *GormStore) Jobs(queueName string, state models.JobState, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.db.Where("queue = ?", queueName)
	if state != "" {
		query = query.Where("state = ?", state)
	}

	var jobs []*models.Job
	if err := query.Order("created_at DESC").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs in %s: %w", queueName, err)
	}
	return jobs, nil
}

// Queues returns the names of all queues that have ever held a job
func (s *GormStore) Queues() ([]string, error) {
	var names []string
	if err := s.db.Model(&models.Job{}).Distinct("queue").Order("queue").Pluck("queue", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to list queues: %w", err)
	}
	return names, nil
}
