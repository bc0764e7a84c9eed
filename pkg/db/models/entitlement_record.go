package models

import (
	"time"
)

// EntitlementRecord persists per-user usage and subscription state.
type EntitlementRecord struct {
	UserID                  int64      `gorm:"column:user_id;primaryKey"`
	FreeCount               int        `gorm:"column:free_count;not null;default:0"`
	FreeMonth               int        `gorm:"column:free_month;not null;default:0"`
	PremiumUntil            *time.Time `gorm:"column:premium_until"`
	TrialUsed               bool       `gorm:"column:trial_used;not null;default:false"`
	SavedMethodHandle       *string    `gorm:"column:saved_method_handle"`
	PlatformSubscriptionRef *string    `gorm:"column:platform_subscription_ref"`
	AutorenewSuspended      bool       `gorm:"column:autorenew_suspended;not null;default:false"`
	CreatedAt               time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
