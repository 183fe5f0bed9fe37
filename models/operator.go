package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// OperatorUser represents an operator account for the queue admin API
type OperatorUser struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SetPassword hashes and sets the password for the operator user
func (u *OperatorUser) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies the provided password against the stored hash
func (u *OperatorUser) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// MigrateOperatorModels runs database migrations for operator accounts
func MigrateOperatorModels(db *gorm.DB) error {
	return db.AutoMigrate(&OperatorUser{})
}

// SeedDefaultOperator creates the default operator account if none exists
func SeedDefaultOperator(db *gorm.DB, password string) error {
	var count int64
	db.Model(&OperatorUser{}).Count(&count)
	if count > 0 {
		return nil
	}

	op := &OperatorUser{
		Username: "operator",
		IsActive: true,
	}
	if err := op.SetPassword(password); err != nil {
		return err
	}

	return db.Create(op).Error
}
