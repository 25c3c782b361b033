package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/digistore-backend/internal/database"
	"github.com/javajoker/digistore-backend/internal/models"
	"github.com/javajoker/digistore-backend/internal/testutil"
)

func TestEarningsLedgerMovements(t *testing.T) {
	db := testutil.NewDB(t)
	seller := testutil.CreateSeller(t, db)
	ledger := NewEarningsLedger()

	require.NoError(t, ledger.Credit(db, seller.ID, 475000))
	require.NoError(t, ledger.Credit(db, seller.ID, 25000))
	assert.Equal(t, models.Earnings{Total: 500000, Available: 500000}, testutil.Earnings(t, db, seller.ID))

	require.NoError(t, ledger.Reserve(db, seller.ID, 300000))
	assert.Equal(t, models.Earnings{Total: 500000, Available: 200000, Pending: 300000}, testutil.Earnings(t, db, seller.ID))

	require.NoError(t, ledger.Settle(db, seller.ID, 100000))
	require.NoError(t, ledger.Release(db, seller.ID, 200000))

	earnings := testutil.Earnings(t, db, seller.ID)
	assert.Equal(t, models.Earnings{Total: 500000, Available: 400000, Withdrawn: 100000}, earnings)
	assert.True(t, earnings.Consistent())
}

func TestEarningsLedgerGuards(t *testing.T) {
	db := testutil.NewDB(t)
	seller := testutil.CreateSeller(t, db)
	ledger := NewEarningsLedger()
	testutil.SetEarnings(t, db, seller.ID, models.Earnings{Total: 1000, Available: 1000})

	assert.ErrorIs(t, ledger.Reserve(db, seller.ID, 1001), ErrInsufficientBalance)
	assert.ErrorIs(t, ledger.Release(db, seller.ID, 1), ErrLedgerInconsistent)
	assert.ErrorIs(t, ledger.Settle(db, seller.ID, 1), ErrLedgerInconsistent)
	assert.ErrorIs(t, ledger.Credit(db, uuid.New(), 10), ErrUserNotFound)

	assert.Equal(t, models.Earnings{Total: 1000, Available: 1000}, testutil.Earnings(t, db, seller.ID))
}

func TestEarningsLedgerRollsBackWithTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	seller := testutil.CreateSeller(t, db)
	ledger := NewEarningsLedger()
	testutil.SetEarnings(t, db, seller.ID, models.Earnings{Total: 1000, Available: 1000})

	err := database.WithTransaction(db, func(tx *gorm.DB) error {
		if err := ledger.Reserve(tx, seller.ID, 600); err != nil {
			return err
		}
		return ledger.Reserve(tx, seller.ID, 600)
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, models.Earnings{Total: 1000, Available: 1000}, testutil.Earnings(t, db, seller.ID))
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "NGN 4750.00", formatMinor(475000, "NGN"))
	assert.Equal(t, "NGN 0.05", formatMinor(5, "NGN"))
}
