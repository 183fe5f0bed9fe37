package scheduler

import (
	"fmt"
	"log"
	"time"

	"go_jobs_backend/models"
	"go_jobs_backend/queue"
)

// Queue and job names used by the default trigger table
const (
	CandleQueue       = "candles"
	NotificationQueue = "notifications"

	JobCollectCandles = "collect-candles"
	JobSendEmail      = "send-email"
	JobSendPush       = "send-push"
)

// CandlePayload is the payload of a collect-candles job
type CandlePayload struct {
	StockID   uint   `json:"stockId"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

// EmailPayload is the payload of a send-email job
type EmailPayload struct {
	UserID  uint   `json:"userId"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// CandleCollectionAction returns an action that enqueues one
// collect-candles job per active tradable stock for the given timeframe.
// One stock's enqueue failure never aborts the rest of the run.
func CandleCollectionAction(store queue.Store, catalog Catalog, timeframe string, baseDelayMS int) Action {
	opts := queue.Options{
		MaxAttempts:   3,
		BackoffType:   models.BackoffExponential,
		BackoffBaseMS: baseDelayMS,
	}

	return func() (int, error) {
		stocks, err := catalog.ListActiveTradable()
		if err != nil {
			return 0, fmt.Errorf("failed to enumerate tradable stocks: %w", err)
		}

		enqueued := 0
		for _, stock := range stocks {
			payload := CandlePayload{StockID: stock.ID, Symbol: stock.Symbol, Timeframe: timeframe}
			if _, err := store.Enqueue(CandleQueue, JobCollectCandles, payload, opts); err != nil {
				log.Printf("Error enqueuing %s candles for %s: %v", timeframe, stock.Symbol, err)
				continue
			}
			enqueued++
		}
		return enqueued, nil
	}
}

// DigestRecipients is the read-only view of users who receive the weekly
// market digest.
type DigestRecipients interface {
	ListDigestUserIDs() ([]uint, error)
}

// WeeklyDigestAction returns an action that enqueues one send-email job
// per digest recipient.
func WeeklyDigestAction(store queue.Store, recipients DigestRecipients, baseDelayMS int) Action {
	opts := queue.Options{
		MaxAttempts:   3,
		BackoffType:   models.BackoffExponential,
		BackoffBaseMS: baseDelayMS,
	}

	return func() (int, error) {
		userIDs, err := recipients.ListDigestUserIDs()
		if err != nil {
			return 0, fmt.Errorf("failed to enumerate digest recipients: %w", err)
		}

		enqueued := 0
		for _, userID := range userIDs {
			payload := EmailPayload{
				UserID:  userID,
				Subject: "Weekly market digest",
				Body:    "Your weekly market summary is ready.",
			}
			if _, err := store.Enqueue(NotificationQueue, JobSendEmail, payload, opts); err != nil {
				log.Printf("Error enqueuing digest email for user %d: %v", userID, err)
				continue
			}
			enqueued++
		}
		return enqueued, nil
	}
}

// MarketHoursOnly wraps an action so it only runs while the market is
// open. A gated run enqueues nothing and is not an error.
func MarketHoursOnly(action Action) Action {
	return func() (int, error) {
		if !IsMarketOpen(time.Now()) {
			return 0, nil
		}
		return action()
	}
}

// BaseDelays maps trigger names to the retry base delay, in
// milliseconds, stamped onto the jobs that trigger enqueues
type BaseDelays map[string]int

// For returns the base delay for one trigger, falling back to the queue
// default when the trigger has no entry
func (d BaseDelays) For(trigger string) int {
	if ms, ok := d[trigger]; ok && ms > 0 {
		return ms
	}
	return queue.DefaultOptions.BackoffBaseMS
}

// RegisterDefaultTriggers installs the standard trigger table: intraday
// candle collection per timeframe during market hours, an hourly and a
// daily backfill pass, and the weekly digest. Each trigger carries its
// own retry base delay.
func RegisterDefaultTriggers(s *Scheduler, store queue.Store, catalog Catalog, recipients DigestRecipients, delays BaseDelays) {
	s.RegisterTrigger("candles-1m", Schedule{Every: time.Minute},
		MarketHoursOnly(CandleCollectionAction(store, catalog, "1m", delays.For("candles-1m"))))
	s.RegisterTrigger("candles-5m", Schedule{Every: 5 * time.Minute},
		MarketHoursOnly(CandleCollectionAction(store, catalog, "5m", delays.For("candles-5m"))))
	s.RegisterTrigger("candles-15m", Schedule{Every: 15 * time.Minute},
		MarketHoursOnly(CandleCollectionAction(store, catalog, "15m", delays.For("candles-15m"))))
	s.RegisterTrigger("candles-1h", Schedule{Every: time.Hour},
		CandleCollectionAction(store, catalog, "1h", delays.For("candles-1h")))
	s.RegisterTrigger("candles-daily", Schedule{At: "16:00"},
		CandleCollectionAction(store, catalog, "1d", delays.For("candles-daily")))
	s.RegisterTrigger("weekly-digest", Schedule{At: "08:00", Weekly: true, Weekday: time.Sunday},
		WeeklyDigestAction(store, recipients, delays.For("weekly-digest")))
}
