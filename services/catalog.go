package services

import (
	"fmt"

	"go_jobs_backend/models"

	"gorm.io/gorm"
)

// CatalogService is the read-only view of the stock catalog used by the
// scheduler. It never mutates catalog rows.
type CatalogService struct {
	db *gorm.DB
}

// NewCatalogService creates a new catalog service
func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

// ListActiveTradable returns all stocks that are active and tradable
func (cs *CatalogService) ListActiveTradable() ([]models.Stock, error) {
	var stocks []models.Stock
	if err := cs.db.Where("status = ? AND tradable = ?", "active", true).Find(&stocks).Error; err != nil {
		return nil, fmt.Errorf("failed to load active stocks: %w", err)
	}
	return stocks, nil
}

// ListDigestUserIDs returns the distinct users holding at least one push
// subscription; they receive the weekly digest email.
func (cs *CatalogService) ListDigestUserIDs() ([]uint, error) {
	var userIDs []uint
	if err := cs.db.Model(&models.PushSubscription{}).
		Distinct("user_id").
		Order("user_id").
		Pluck("user_id", &userIDs).Error; err != nil {
		return nil, fmt.Errorf("failed to load digest recipients: %w", err)
	}
	return userIDs, nil
}
