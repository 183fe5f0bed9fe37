package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"go_jobs_backend/models"
	"go_jobs_backend/scheduler"
	"go_jobs_backend/services/datafetcher"
	"go_jobs_backend/worker"
)

// CandleFetcher is the outbound market-data source
type CandleFetcher interface {
	Fetch(symbol, timeframe string, from, to time.Time) ([]datafetcher.CandleRecord, error)
}

// CandleWriter is the idempotent time-series store
type CandleWriter interface {
	UpsertCandle(stockID uint, timeframe string, rec datafetcher.CandleRecord) error
	MirrorBatch(symbol, timeframe string, records []datafetcher.CandleRecord)
}

// CollectCandles returns the handler for collect-candles jobs: fetch the
// recent window for one symbol and timeframe and upsert every bar.
// Re-running the same payload converges on the same stored rows, so
// duplicate jobs from overlapping trigger fires are harmless.
func CollectCandles(fetcher CandleFetcher, writer CandleWriter) worker.Handler {
	return func(ctx context.Context, job *models.Job, progress worker.ProgressFunc) (string, error) {
		var payload scheduler.CandlePayload
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			return "", fmt.Errorf("failed to decode candle payload: %w", err)
		}

		to := time.Now()
		from := to.Add(-datafetcher.LookbackWindow(payload.Timeframe))

		records, err := fetcher.Fetch(payload.Symbol, payload.Timeframe, from, to)
		if err != nil {
			return "", err
		}

		for i, rec := range records {
			if err := writer.UpsertCandle(payload.StockID, payload.Timeframe, rec); err != nil {
				return "", err
			}
			if perr := progress((i + 1) * 100 / len(records)); perr != nil {
				log.Printf("Error reporting progress for job %s: %v", job.JobID, perr)
			}
		}

		writer.MirrorBatch(payload.Symbol, payload.Timeframe, records)

		return fmt.Sprintf("stored %d candles", len(records)), nil
	}
}
