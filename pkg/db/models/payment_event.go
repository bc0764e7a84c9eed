package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEvent records every applied payment confirmation. The unique
// external transaction id is what makes webhook replays inert.
type PaymentEvent struct {
	ID                    uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID                int64     `gorm:"column:user_id;not null;index"`
	Rail                  string    `gorm:"column:rail;not null"`
	ExternalTransactionID string    `gorm:"column:external_transaction_id;not null;unique"`
	AmountMinor           int64     `gorm:"column:amount_minor;not null"`
	Currency              string    `gorm:"column:currency;not null"`
	GrantedUntil          time.Time `gorm:"column:granted_until;not null"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
}
