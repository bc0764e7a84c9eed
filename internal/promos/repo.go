package promos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/beautynano/beautynano-backend/pkg/db/models"
)

// Repository reads and consumes promo codes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, code string) (*models.PromoCode, error)
	ConsumeUse(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, promo *models.PromoCode) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a promo repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Find(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&promo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &promo, nil
}

// ConsumeUse decrements uses_left if any remain. The guarded UPDATE is what
// keeps two concurrent redemptions of a one-use code from both succeeding.
func (r *repository) ConsumeUse(ctx context.Context, code string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PromoCode{}).
		Where("code = ? AND uses_left > 0", code).
		UpdateColumn("uses_left", gorm.Expr("uses_left - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Create(ctx context.Context, promo *models.PromoCode) error {
	return r.db.WithContext(ctx).Create(promo).Error
}
