package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/javajoker/digistore-backend/internal/commission"
)

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusSuccessful TransactionStatus = "successful"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
	TransactionStatusRefunded   TransactionStatus = "refunded"
)

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:    {TransactionStatusSuccessful, TransactionStatusFailed, TransactionStatusCancelled},
	TransactionStatusSuccessful: {TransactionStatusRefunded},
}

func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transactionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsSettled reports whether the payment outcome is known.
func (s TransactionStatus) IsSettled() bool {
	return s != TransactionStatusPending
}

// Transaction is a single purchase attempt of one file by one buyer. Money
// fields are in minor units and Amount == PlatformCommission + SellerEarning.
type Transaction struct {
	BaseModel
	PaymentReference   string            `json:"payment_reference" gorm:"size:64;uniqueIndex;not null"`
	GatewayTxID        string            `json:"gateway_tx_id,omitempty" gorm:"size:128;index"`
	Provider           string            `json:"provider" gorm:"size:20;not null"`
	BuyerID            uuid.UUID         `json:"buyer_id" gorm:"type:uuid;not null;index"`
	SellerID           uuid.UUID         `json:"seller_id" gorm:"type:uuid;not null;index"`
	FileID             uuid.UUID         `json:"file_id" gorm:"type:uuid;not null;index"`
	Amount             int64             `json:"amount" gorm:"not null"`
	Currency           string            `json:"currency" gorm:"size:3;not null"`
	CommissionRate     decimal.Decimal   `json:"commission_rate" gorm:"type:decimal(5,4);not null"`
	PlatformCommission int64             `json:"platform_commission" gorm:"not null"`
	SellerEarning      int64             `json:"seller_earning" gorm:"not null"`
	Status             TransactionStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	PaymentMethod      string            `json:"payment_method,omitempty" gorm:"size:50"`
	FailureReason      string            `json:"failure_reason,omitempty" gorm:"type:text"`
	PaidAt             *time.Time        `json:"paid_at"`
	Metadata           JSONB             `json:"metadata,omitempty" gorm:"type:jsonb"`

	DownloadCount  int        `json:"download_count" gorm:"not null;default:0"`
	DownloadLimit  int        `json:"download_limit" gorm:"not null;default:5"`
	DownloadExpiry *time.Time `json:"download_expiry"`
	LastDownloadAt *time.Time `json:"last_download_at"`

	Buyer  *User `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
	Seller *User `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
	File   *File `json:"file,omitempty" gorm:"foreignKey:FileID"`
}

// ApplySplit copies a commission split onto the transaction.
func (t *Transaction) ApplySplit(split commission.Split) {
	t.CommissionRate = split.CommissionRate
	t.PlatformCommission = split.CommissionAmount
	t.SellerEarning = split.SellerEarning
}

type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "pending"
	CommissionStatusConfirmed CommissionStatus = "confirmed"
	CommissionStatusDisputed  CommissionStatus = "disputed"
)

// Commission records the platform's cut of exactly one successful
// transaction.
type Commission struct {
	BaseModel
	TransactionID    uuid.UUID        `json:"transaction_id" gorm:"type:uuid;uniqueIndex;not null"`
	SellerID         uuid.UUID        `json:"seller_id" gorm:"type:uuid;not null;index"`
	SaleAmount       int64            `json:"sale_amount" gorm:"not null"`
	CommissionRate   decimal.Decimal  `json:"commission_rate" gorm:"type:decimal(5,4);not null"`
	CommissionAmount int64            `json:"commission_amount" gorm:"not null"`
	SellerEarning    int64            `json:"seller_earning" gorm:"not null"`
	Status           CommissionStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	ConfirmedAt      *time.Time       `json:"confirmed_at"`

	Transaction *Transaction `json:"transaction,omitempty" gorm:"foreignKey:TransactionID"`
}

// BeforeSave keeps the derived amounts in step with the sale amount and rate.
func (c *Commission) BeforeSave(tx *gorm.DB) error {
	split, err := commission.Calculate(c.SaleAmount, c.CommissionRate)
	if err != nil {
		return err
	}
	c.CommissionAmount = split.CommissionAmount
	c.SellerEarning = split.SellerEarning
	return nil
}
