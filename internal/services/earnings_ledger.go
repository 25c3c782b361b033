// internal/services/earnings_ledger.go
package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/javajoker/digistore-backend/internal/models"
)

// EarningsLedger moves seller money between buckets. Every method is a
// single conditional UPDATE so concurrent callers cannot lose increments,
// and callers pass the *gorm.DB of their enclosing transaction.
type EarningsLedger struct{}

func NewEarningsLedger() *EarningsLedger {
	return &EarningsLedger{}
}

// Credit adds a settled sale: total and available both grow.
func (l *EarningsLedger) Credit(tx *gorm.DB, sellerID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return nil
	}
	res := tx.Model(&models.User{}).
		Where("id = ?", sellerID).
		Updates(map[string]interface{}{
			"earnings_total":     gorm.Expr("earnings_total + ?", amount),
			"earnings_available": gorm.Expr("earnings_available + ?", amount),
		})
	if res.Error != nil {
		return fmt.Errorf("credit earnings: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: seller %s", ErrUserNotFound, sellerID)
	}
	return nil
}

// Reserve parks amount for a withdrawal request.
func (l *EarningsLedger) Reserve(tx *gorm.DB, sellerID uuid.UUID, amount int64) error {
	res := tx.Model(&models.User{}).
		Where("id = ? AND earnings_available >= ?", sellerID, amount).
		Updates(map[string]interface{}{
			"earnings_available": gorm.Expr("earnings_available - ?", amount),
			"earnings_pending":   gorm.Expr("earnings_pending + ?", amount),
		})
	if res.Error != nil {
		return fmt.Errorf("reserve earnings: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// Release returns a reserved amount after a failed or cancelled withdrawal.
func (l *EarningsLedger) Release(tx *gorm.DB, sellerID uuid.UUID, amount int64) error {
	return l.movePending(tx, sellerID, amount, "earnings_available")
}

// Settle records a completed payout.
func (l *EarningsLedger) Settle(tx *gorm.DB, sellerID uuid.UUID, amount int64) error {
	return l.movePending(tx, sellerID, amount, "earnings_withdrawn")
}

func (l *EarningsLedger) movePending(tx *gorm.DB, sellerID uuid.UUID, amount int64, column string) error {
	res := tx.Model(&models.User{}).
		Where("id = ? AND earnings_pending >= ?", sellerID, amount).
		Updates(map[string]interface{}{
			"earnings_pending": gorm.Expr("earnings_pending - ?", amount),
			column:             gorm.Expr(column+" + ?", amount),
		})
	if res.Error != nil {
		return fmt.Errorf("move pending earnings to %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: pending below %d for seller %s", ErrLedgerInconsistent, amount, sellerID)
	}
	return nil
}

// formatMinor renders minor units for messages, e.g. 475000 NGN -> "NGN 4750.00".
func formatMinor(amount int64, currency string) string {
	return currency + " " + decimal.New(amount, -2).StringFixed(2)
}
