package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/digistore-backend/internal/gateway"
	"github.com/javajoker/digistore-backend/internal/models"
	"github.com/javajoker/digistore-backend/internal/testutil"
)

func TestUpdateBankDetailsStoresResolvedName(t *testing.T) {
	db := testutil.NewDB(t)
	gw := newFakeGateway()
	svc := NewUserService(db, gw)
	seller := testutil.CreateUser(t, db, models.UserTypeSeller)

	user, err := svc.UpdateBankDetails(context.Background(), seller.ID, &BankDetailsRequest{
		BankCode:      "058",
		BankName:      "GTBank",
		AccountNumber: "0123456789",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Seller", user.Bank.AccountName)
	assert.NotNil(t, user.BankVerifiedAt)

	stored, err := svc.GetUserByID(context.Background(), seller.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BankAccount{Code: "058", Name: "GTBank", AccountNumber: "0123456789", AccountName: "Ada Seller"}, stored.Bank)
}

func TestUpdateBankDetailsRejections(t *testing.T) {
	db := testutil.NewDB(t)
	gw := newFakeGateway()
	svc := NewUserService(db, gw)
	ctx := context.Background()
	req := &BankDetailsRequest{BankCode: "058", AccountNumber: "0123456789"}

	buyer := testutil.CreateUser(t, db, models.UserTypeBuyer)
	_, err := svc.UpdateBankDetails(ctx, buyer.ID, req)
	assert.ErrorIs(t, err, ErrSellerOnly)

	seller := testutil.CreateSeller(t, db)
	gw.resolveErr = gateway.ErrAccountNotFound
	_, err = svc.UpdateBankDetails(ctx, seller.ID, req)
	assert.ErrorIs(t, err, ErrBankResolution)

	// The previous account stays on file.
	stored, err := svc.GetUserByID(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, "0690000031", stored.Bank.AccountNumber)
}

func TestGetEarningsSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewUserService(f.db, f.gw)

	seller := testutil.CreateSeller(t, f.db)
	buyer := testutil.CreateUser(t, f.db, models.UserTypeBuyer)
	file := testutil.CreateFile(t, f.db, seller.ID, 500000)

	init, err := f.settlement.InitializePurchase(ctx, buyer.ID, file.ID)
	require.NoError(t, err)
	_, err = f.settlement.ConfirmPurchase(ctx, init.Reference)
	require.NoError(t, err)
	_, err = f.withdrawals.RequestWithdrawal(ctx, seller.ID, 200000)
	require.NoError(t, err)

	summary, err := svc.GetEarnings(ctx, seller.ID, "NGN", 100000)
	require.NoError(t, err)
	assert.Equal(t, models.Earnings{Total: 475000, Available: 275000, Pending: 200000}, summary.Earnings)
	assert.Equal(t, int64(1), summary.SalesCount)
	assert.Equal(t, int64(25000), summary.CommissionPaid)
	assert.Equal(t, int64(1), summary.OpenWithdrawals)
	assert.True(t, summary.BankDetailsOnFile)
	assert.True(t, summary.CanRequestWithdraw)

	_, err = svc.GetEarnings(ctx, buyer.ID, "NGN", 100000)
	assert.ErrorIs(t, err, ErrSellerOnly)
}

func TestUpdateProfile(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewUserService(db, newFakeGateway())
	ctx := context.Background()
	user := testutil.CreateUser(t, db, models.UserTypeBuyer)
	other := testutil.CreateUser(t, db, models.UserTypeBuyer)

	updated, err := svc.UpdateProfile(ctx, user.ID, &UpdateUserProfileRequest{
		Username:    "ada_reads",
		ProfileData: map[string]interface{}{"bio": "Collector of PDFs"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ada_reads", updated.Username)
	assert.Equal(t, "Collector of PDFs", updated.ProfileData["bio"])

	_, err = svc.UpdateProfile(ctx, other.ID, &UpdateUserProfileRequest{Username: "ada_reads"})
	assert.ErrorIs(t, err, ErrUserExists)
}
