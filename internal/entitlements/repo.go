package entitlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/beautynano/beautynano-backend/pkg/db/models"
)

// Repository persists entitlement state. The in-memory store is
// authoritative at runtime; the repository backs warm starts and audit.
type Repository interface {
	ListRecords(ctx context.Context) ([]models.EntitlementRecord, error)
	UpsertRecord(ctx context.Context, record *models.EntitlementRecord) error
	ListTransactionIDs(ctx context.Context) ([]string, error)
	InsertPaymentEvent(ctx context.Context, event *models.PaymentEvent) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an entitlement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListRecords(ctx context.Context) ([]models.EntitlementRecord, error) {
	var records []models.EntitlementRecord
	if err := r.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) UpsertRecord(ctx context.Context, record *models.EntitlementRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"free_count",
				"free_month",
				"premium_until",
				"trial_used",
				"saved_method_handle",
				"platform_subscription_ref",
				"autorenew_suspended",
				"updated_at",
			}),
		}).
		Create(record).Error
}

func (r *repository) ListTransactionIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&models.PaymentEvent{}).
		Pluck("external_transaction_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) InsertPaymentEvent(ctx context.Context, event *models.PaymentEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(event).Error
}
