package services

import (
	"fmt"
	"log"

	"go_jobs_backend/models"
	"go_jobs_backend/services/datafetcher"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CandleService owns the time-series candle store. Writes are keyed by
// (stock_id, timeframe, ts): upserting the same bar twice leaves exactly
// one row, which is what makes the collection handler safe to re-run.
type CandleService struct {
	db      *gorm.DB
	mirror  *MongoMirror
	archive *LocalArchive
}

// NewCandleService creates a new candle service. The mirror and archive
// may be nil when not configured.
func NewCandleService(db *gorm.DB, mirror *MongoMirror, archive *LocalArchive) *CandleService {
	return &CandleService{db: db, mirror: mirror, archive: archive}
}

// UpsertCandle writes one OHLCV bar, replacing any existing bar with the
// same natural key
func (cs *CandleService) UpsertCandle(stockID uint, timeframe string, rec datafetcher.CandleRecord) error {
	candle := models.Candle{
		StockID:   stockID,
		Timeframe: timeframe,
		Ts:        rec.Ts,
		Open:      rec.Open,
		High:      rec.High,
		Low:       rec.Low,
		Close:     rec.Close,
		Volume:    rec.Volume,
	}

	err := cs.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stock_id"}, {Name: "timeframe"}, {Name: "ts"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "updated_at"}),
	}).Create(&candle).Error
	if err != nil {
		return fmt.Errorf("failed to upsert candle stock=%d %s@%s: %w", stockID, timeframe, rec.Ts, err)
	}

	// The archive is best-effort; the primary store is the source of truth.
	if cs.archive != nil {
		if aerr := cs.archive.UpsertCandle(stockID, timeframe, rec); aerr != nil {
			log.Printf("Error archiving candle: %v", aerr)
		}
	}
	return nil
}

// MirrorBatch pushes the latest collected batch for a symbol to the
// MongoDB mirror. Mirror failures are logged, never propagated: the
// mirror is a convenience copy, not the source of truth.
func (cs *CandleService) MirrorBatch(symbol, timeframe string, records []datafetcher.CandleRecord) {
	if cs.mirror == nil || len(records) == 0 {
		return
	}
	if err := cs.mirror.UpsertLatestBatch(symbol, timeframe, records); err != nil {
		log.Printf("Error mirroring %s/%s batch to MongoDB: %v", symbol, timeframe, err)
	}
}
