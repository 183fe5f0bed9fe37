package models

import (
	"time"

	"gorm.io/gorm"
)

// JobState is a closed set of job lifecycle states
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobActive    JobState = "active"
	JobDelayed   JobState = "delayed"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// IsTerminal reports whether a job in this state will never run again
// without operator intervention.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Backoff types
const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
)

// Job represents a unit of background work in a named queue
type Job struct {
	ID            uint       `gorm:"primaryKey" json:"-"`
	JobID         string     `gorm:"uniqueIndex;not null" json:"id"`
	Queue         string     `gorm:"index:idx_queue_state;not null" json:"queue"`
	Name          string     `gorm:"not null" json:"name"`
	Payload       string     `gorm:"type:text" json:"payload"`
	State         JobState   `gorm:"index:idx_queue_state;not null;default:'waiting'" json:"state"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	BackoffType   string     `gorm:"default:'exponential'" json:"backoff_type"`
	BackoffBaseMS int        `json:"backoff_base_ms"`
	Progress      int        `json:"progress"`
	NotBefore     *time.Time `gorm:"index" json:"not_before,omitempty"`
	Result        string     `json:"result,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// BackoffDelay returns the delay to apply before retry number attempt,
// counted from 1 for the first retry.
func (j *Job) BackoffDelay(attempt int) time.Duration {
	base := time.Duration(j.BackoffBaseMS) * time.Millisecond
	if base <= 0 {
		base = 2000 * time.Millisecond
	}
	if j.BackoffType == BackoffFixed {
		return base
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// QueueCounts holds per-state job counts for one queue
type QueueCounts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Failed    int64 `json:"failed"`
	Completed int64 `json:"completed"`
}

// MigrateJobModels runs database migrations for job-related models
func MigrateJobModels(db *gorm.DB) error {
	return db.AutoMigrate(&Job{})
}
