package scheduler

import (
	"fmt"
	"log"
	"time"

	"go_jobs_backend/models"

	"github.com/go-co-op/gocron"
)

// Catalog is the read-only view of the entity catalog the scheduler
// enumerates on each trigger fire.
type Catalog interface {
	ListActiveTradable() ([]models.Stock, error)
}

// Action is one trigger's work: enumerate eligible entities and enqueue
// one job per entity. It returns how many jobs were enqueued. An error
// means the enumeration itself failed and the run was skipped; per-entity
// enqueue failures are handled inside the action and never abort the run.
type Action func() (int, error)

// Schedule describes when a trigger fires
type Schedule struct {
	// Every fires at a fixed recurring interval.
	Every time.Duration
	// At fires at a fixed wall-clock time ("16:00" UTC), daily unless
	// Weekly is set.
	At      string
	Weekly  bool
	Weekday time.Weekday
}

// Trigger is one entry in the scheduler's table
type Trigger struct {
	Name     string
	Schedule Schedule
	Action   Action
}

// Scheduler owns an explicit table of recurring triggers. Each trigger
// gets its own gocron job so a slow run never delays another trigger's
// timer.
type Scheduler struct {
	cron     *gocron.Scheduler
	triggers []Trigger
}

// NewScheduler creates a new scheduler instance
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: gocron.NewScheduler(time.UTC),
	}
}

// RegisterTrigger adds a trigger to the table. Triggers are registered
// before Start; the schedule table is fixed for the process lifetime.
func (s *Scheduler) RegisterTrigger(name string, schedule Schedule, action Action) {
	s.triggers = append(s.triggers, Trigger{Name: name, Schedule: schedule, Action: action})
}

// Start arms every registered trigger
func (s *Scheduler) Start() error {
	log.Println("Starting scheduler...")

	for _, t := range s.triggers {
		trigger := t
		job, err := s.schedule(trigger.Schedule)
		if err != nil {
			return fmt.Errorf("invalid schedule for trigger %s: %w", trigger.Name, err)
		}
		if _, err := job.Do(func() { s.runTrigger(trigger) }); err != nil {
			return fmt.Errorf("failed to arm trigger %s: %w", trigger.Name, err)
		}
	}

	s.cron.StartAsync()
	log.Printf("Scheduler started with %d triggers", len(s.triggers))
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) schedule(sched Schedule) (*gocron.Scheduler, error) {
	switch {
	case sched.At != "" && sched.Weekly:
		return s.cron.Every(1).Week().Weekday(sched.Weekday).At(sched.At), nil
	case sched.At != "":
		return s.cron.Every(1).Day().At(sched.At), nil
	case sched.Every > 0:
		return s.cron.Every(sched.Every), nil
	default:
		return nil, fmt.Errorf("schedule has neither an interval nor a fixed time")
	}
}

// runTrigger executes one trigger fire. Enumeration failures skip only
// this run; the trigger stays armed for its next fire. Nothing a trigger
// does may escape the scheduler boundary.
func (s *Scheduler) runTrigger(t Trigger) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Trigger %s panicked: %v", t.Name, r)
		}
	}()

	enqueued, err := t.Action()
	if err != nil {
		log.Printf("Trigger %s run skipped: %v", t.Name, err)
		return
	}
	if enqueued > 0 {
		log.Printf("Trigger %s enqueued %d jobs", t.Name, enqueued)
	}
}

// IsMarketOpen checks if the stock market is currently open
func IsMarketOpen(now time.Time) bool {
	// Weekend
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}

	// Trading hours: 9:00 - 15:00 (exchange local time)
	hour := now.Hour()
	return hour >= 9 && hour < 15
}
