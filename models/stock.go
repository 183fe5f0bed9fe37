package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Stock represents a listed stock symbol
type Stock struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"uniqueIndex;not null" json:"symbol"`
	Name      string    `json:"name"`
	Exchange  string    `json:"exchange"` // HOSE, HNX, UPCOM
	Status    string    `json:"status"`   // active, delisted, suspended
	Tradable  bool      `gorm:"default:true" json:"tradable"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Candle represents one OHLCV bar for a stock at a given timeframe.
// The (stock_id, timeframe, ts) key makes candle writes idempotent.
type Candle struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	StockID   uint            `gorm:"uniqueIndex:idx_candle_key" json:"stock_id"`
	Stock     Stock           `gorm:"foreignKey:StockID" json:"stock,omitempty"`
	Timeframe string          `gorm:"uniqueIndex:idx_candle_key" json:"timeframe"` // 1m, 5m, 15m, 1h, 1d
	Ts        time.Time       `gorm:"uniqueIndex:idx_candle_key" json:"ts"`
	Open      decimal.Decimal `gorm:"type:decimal(15,2)" json:"open"`
	High      decimal.Decimal `gorm:"type:decimal(15,2)" json:"high"`
	Low       decimal.Decimal `gorm:"type:decimal(15,2)" json:"low"`
	Close     decimal.Decimal `gorm:"type:decimal(15,2)" json:"close"`
	Volume    int64           `json:"volume"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PushSubscription stores a user's web-push endpoint. Deleted when the
// push relay reports the subscription gone.
type PushSubscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Endpoint  string    `gorm:"uniqueIndex;not null" json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}

// MigrateMarketModels runs database migrations for market-data models
func MigrateMarketModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Stock{},
		&Candle{},
		&PushSubscription{},
	)
}
