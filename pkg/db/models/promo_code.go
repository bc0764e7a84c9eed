package models

import (
	"time"
)

// PromoCode is a finite-use coupon granting bonus premium days.
type PromoCode struct {
	Code      string    `gorm:"column:code;primaryKey"`
	BonusDays int       `gorm:"column:bonus_days;not null"`
	UsesLeft  int       `gorm:"column:uses_left;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
