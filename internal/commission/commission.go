// Package commission splits a sale between the platform and the seller.
package commission

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("commission: amount must be positive")
	ErrInvalidRate   = errors.New("commission: rate must be between 0 and 1")
	ErrRatePrecision = errors.New("commission: rate has more than 4 decimal places")
)

// RatePlaces is the precision of stored rates (decimal(5,4) columns).
const RatePlaces = 4

var one = decimal.NewFromInt(1)

// Split is the result of dividing a sale. CommissionAmount + SellerEarning
// always equals the sale amount.
type Split struct {
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount int64           `json:"commission_amount"`
	SellerEarning    int64           `json:"seller_earning"`
}

// Calculate splits amount (minor units) at rate. The commission is rounded
// half away from zero to a whole minor unit and the seller receives the rest.
func Calculate(amount int64, rate decimal.Decimal) (Split, error) {
	if amount <= 0 {
		return Split{}, ErrInvalidAmount
	}
	if err := ValidateRate(rate); err != nil {
		return Split{}, err
	}

	fee := decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()

	return Split{
		CommissionRate:   rate,
		CommissionAmount: fee,
		SellerEarning:    amount - fee,
	}, nil
}

// ValidateRate accepts rates in [0, 1] that survive storage unchanged, so a
// split recomputed from a stored rate matches the original.
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(one) {
		return ErrInvalidRate
	}
	if !rate.Equal(rate.Round(RatePlaces)) {
		return ErrRatePrecision
	}
	return nil
}

// Calculator applies a platform-wide default rate.
type Calculator struct {
	defaultRate decimal.Decimal
}

func NewCalculator(defaultRate decimal.Decimal) *Calculator {
	return &Calculator{defaultRate: defaultRate}
}

func (c *Calculator) DefaultRate() decimal.Decimal {
	return c.defaultRate
}

// Split uses the default rate when rate is nil.
func (c *Calculator) Split(amount int64, rate *decimal.Decimal) (Split, error) {
	if rate == nil {
		return Calculate(amount, c.defaultRate)
	}
	return Calculate(amount, *rate)
}
