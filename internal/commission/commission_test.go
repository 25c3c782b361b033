package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name       string
		amount     int64
		rate       string
		commission int64
		earning    int64
	}{
		{"five percent of 5000 naira", 500000, "0.05", 25000, 475000},
		{"zero rate", 120000, "0", 0, 120000},
		{"full rate", 120000, "1", 120000, 0},
		{"rounds half up", 10, "0.05", 1, 9},
		{"rounds fraction above half up", 333, "0.05", 17, 316},
		{"rounds fraction below half down", 1, "0.05", 0, 1},
		{"fractional rate", 999999, "0.075", 75000, 924999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			split, err := Calculate(tt.amount, decimal.RequireFromString(tt.rate))
			require.NoError(t, err)
			assert.Equal(t, tt.commission, split.CommissionAmount)
			assert.Equal(t, tt.earning, split.SellerEarning)
			assert.Equal(t, tt.amount, split.CommissionAmount+split.SellerEarning)
		})
	}
}

func TestCalculateRejectsBadInput(t *testing.T) {
	_, err := Calculate(0, decimal.RequireFromString("0.05"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Calculate(-100, decimal.RequireFromString("0.05"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Calculate(100, decimal.RequireFromString("-0.01"))
	assert.ErrorIs(t, err, ErrInvalidRate)

	_, err = Calculate(100, decimal.RequireFromString("1.01"))
	assert.ErrorIs(t, err, ErrInvalidRate)

	// 0.12345 would be stored as 0.1235 and recompute to a different fee.
	_, err = Calculate(100000, decimal.RequireFromString("0.12345"))
	assert.ErrorIs(t, err, ErrRatePrecision)
}

func TestValidateRate(t *testing.T) {
	assert.NoError(t, ValidateRate(decimal.RequireFromString("0.1235")))
	assert.NoError(t, ValidateRate(decimal.RequireFromString("0.050000")))
	assert.NoError(t, ValidateRate(decimal.Zero))
	assert.NoError(t, ValidateRate(decimal.NewFromInt(1)))
	assert.ErrorIs(t, ValidateRate(decimal.RequireFromString("0.00001")), ErrRatePrecision)
}

func TestSplitAlwaysSumsToAmount(t *testing.T) {
	rates := []string{"0.01", "0.05", "0.1", "0.125", "0.3333"}
	for _, r := range rates {
		rate := decimal.RequireFromString(r)
		for amount := int64(1); amount < 5000; amount += 7 {
			split, err := Calculate(amount, rate)
			require.NoError(t, err)
			assert.Equal(t, amount, split.CommissionAmount+split.SellerEarning, "rate %s amount %d", r, amount)
			assert.GreaterOrEqual(t, split.SellerEarning, int64(0))
		}
	}
}

func TestCalculatorDefaultRate(t *testing.T) {
	calc := NewCalculator(decimal.RequireFromString("0.05"))

	split, err := calc.Split(500000, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), split.CommissionAmount)
	assert.True(t, split.CommissionRate.Equal(decimal.RequireFromString("0.05")))

	custom := decimal.RequireFromString("0.1")
	split, err = calc.Split(500000, &custom)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), split.CommissionAmount)
}
