package services

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"go_jobs_backend/services/datafetcher"

	_ "github.com/mattn/go-sqlite3"
)

// ArchivePath is the local candle archive file
const ArchivePath = "data/candles.db"

// LocalArchive keeps a local sqlite copy of collected candles so the
// primary store can be rebuilt or inspected offline
type LocalArchive struct {
	db *sql.DB
	mu sync.Mutex
}

// NewLocalArchive opens (or creates) the local candle archive
func NewLocalArchive(path string) (*LocalArchive, error) {
	if path == "" {
		path = ArchivePath
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open candle archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping candle archive: %w", err)
	}

	archive := &LocalArchive{db: db}
	if err := archive.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create archive tables: %w", err)
	}

	log.Println("Local candle archive opened")
	return archive, nil
}

// Close closes the archive database
func (a *LocalArchive) Close() error {
	return a.db.Close()
}

func (a *LocalArchive) createTables() error {
	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			stock_id INTEGER NOT NULL,
			timeframe TEXT NOT NULL,
			ts TIMESTAMP NOT NULL,
			open TEXT NOT NULL,
			high TEXT NOT NULL,
			low TEXT NOT NULL,
			close TEXT NOT NULL,
			volume INTEGER NOT NULL,
			PRIMARY KEY (stock_id, timeframe, ts)
		);
	`)
	return err
}

// UpsertCandle writes one bar into the archive, replacing any existing
// bar with the same key
func (a *LocalArchive) UpsertCandle(stockID uint, timeframe string, rec datafetcher.CandleRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec(`
		INSERT OR REPLACE INTO candles (stock_id, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stockID, timeframe, rec.Ts,
		rec.Open.String(), rec.High.String(), rec.Low.String(), rec.Close.String(),
		rec.Volume,
	)
	if err != nil {
		return fmt.Errorf("failed to archive candle stock=%d %s@%s: %w", stockID, timeframe, rec.Ts, err)
	}
	return nil
}
