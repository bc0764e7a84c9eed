package promos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/beautynano/beautynano-backend/pkg/db/models"
)

func newPromoTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.PromoCode{}))
	return conn
}

func TestConsumeUseGuardedDecrement(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newPromoTestDB(t))

	require.NoError(t, repo.Create(ctx, &models.PromoCode{
		Code:      "WELCOME7",
		BonusDays: 7,
		UsesLeft:  1,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}))

	ok, err := repo.ConsumeUse(ctx, "WELCOME7")
	require.NoError(t, err)
	assert.True(t, ok, "first consume should succeed")

	ok, err = repo.ConsumeUse(ctx, "WELCOME7")
	require.NoError(t, err)
	assert.False(t, ok, "second consume of a one-use code should fail")

	promo, err := repo.Find(ctx, "WELCOME7")
	require.NoError(t, err)
	assert.Equal(t, 0, promo.UsesLeft)
}

func TestFindMissingCodeReturnsNil(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newPromoTestDB(t))

	promo, err := repo.Find(ctx, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, promo)
}
