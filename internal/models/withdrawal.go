package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "pending"
	WithdrawalStatusProcessing WithdrawalStatus = "processing"
	WithdrawalStatusCompleted  WithdrawalStatus = "completed"
	WithdrawalStatusFailed     WithdrawalStatus = "failed"
	WithdrawalStatusCancelled  WithdrawalStatus = "cancelled"
)

var withdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalStatusPending:    {WithdrawalStatusProcessing, WithdrawalStatusCancelled},
	WithdrawalStatusProcessing: {WithdrawalStatusCompleted, WithdrawalStatusFailed, WithdrawalStatusCancelled},
}

func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	for _, allowed := range withdrawalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HoldsFunds reports whether the amount is still parked in the seller's
// pending bucket.
func (s WithdrawalStatus) HoldsFunds() bool {
	return s == WithdrawalStatusPending || s == WithdrawalStatusProcessing
}

var (
	ErrWithdrawalAmount = errors.New("withdrawal amount must be positive")
	ErrWithdrawalBank   = errors.New("withdrawal requires bank details")
)

type Withdrawal struct {
	BaseModel
	UserID        uuid.UUID        `json:"user_id" gorm:"type:uuid;not null;index"`
	Amount        int64            `json:"amount" gorm:"not null"`
	Currency      string           `json:"currency" gorm:"size:3;not null"`
	Reference     string           `json:"reference" gorm:"size:64;uniqueIndex;not null"`
	Bank          BankAccount      `json:"bank" gorm:"embedded;embeddedPrefix:bank_"`
	Status        WithdrawalStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	TransferID    string           `json:"transfer_id,omitempty" gorm:"size:128;index"`
	TransferFee   int64            `json:"transfer_fee"`
	ProcessedBy   *uuid.UUID       `json:"processed_by" gorm:"type:uuid"`
	ProcessedAt   *time.Time       `json:"processed_at"`
	CompletedAt   *time.Time       `json:"completed_at"`
	FailedAt      *time.Time       `json:"failed_at"`
	CancelledAt   *time.Time       `json:"cancelled_at"`
	FailureReason string           `json:"failure_reason,omitempty" gorm:"type:text"`
	CancelReason  string           `json:"cancel_reason,omitempty" gorm:"type:text"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// BeforeCreate rejects requests that could never be paid out. The balance
// check itself happens in the ledger update that runs in the same database
// transaction.
func (w *Withdrawal) BeforeCreate(tx *gorm.DB) error {
	if w.Amount <= 0 {
		return ErrWithdrawalAmount
	}
	if !w.Bank.IsComplete() {
		return ErrWithdrawalBank
	}
	return w.BaseModel.BeforeCreate(tx)
}
