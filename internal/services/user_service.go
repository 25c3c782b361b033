// internal/services/user_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/digistore-backend/internal/gateway"
	"github.com/javajoker/digistore-backend/internal/models"
)

type UserService struct {
	db      *gorm.DB
	gateway gateway.Gateway
}

type UpdateUserProfileRequest struct {
	Username    string                 `json:"username,omitempty" validate:"omitempty,username"`
	ProfileData map[string]interface{} `json:"profile_data,omitempty"`
}

type BankDetailsRequest struct {
	BankCode      string `json:"bank_code" validate:"required,bank_code"`
	BankName      string `json:"bank_name" validate:"omitempty,max=100"`
	AccountNumber string `json:"account_number" validate:"required,account_number"`
}

// EarningsSummary is the seller dashboard view of the ledger.
type EarningsSummary struct {
	models.Earnings
	Currency           string `json:"currency"`
	SalesCount         int64  `json:"sales_count"`
	CommissionPaid     int64  `json:"commission_paid"`
	OpenWithdrawals    int64  `json:"open_withdrawals"`
	BankDetailsOnFile  bool   `json:"bank_details_on_file"`
	MinimumWithdrawal  int64  `json:"minimum_withdrawal"`
	CanRequestWithdraw bool   `json:"can_request_withdrawal"`
}

func NewUserService(db *gorm.DB, gw gateway.Gateway) *UserService {
	return &UserService{
		db:      db,
		gateway: gw,
	}
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req *UpdateUserProfileRequest) (*models.User, error) {
	db := s.db.WithContext(ctx)

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Check username uniqueness if updating
	if req.Username != "" && req.Username != user.Username {
		var taken int64
		db.Model(&models.User{}).Where("username = ? AND id <> ?", req.Username, userID).Count(&taken)
		if taken > 0 {
			return nil, ErrUserExists
		}
		user.Username = req.Username
	}

	if req.ProfileData != nil {
		if user.ProfileData == nil {
			user.ProfileData = make(models.JSONB)
		}
		// Merge with existing profile data
		for key, value := range req.ProfileData {
			user.ProfileData[key] = value
		}
	}

	if err := db.Model(user).Updates(map[string]interface{}{
		"username":     user.Username,
		"profile_data": user.ProfileData,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// GetEarnings returns the seller's ledger with sale and payout counters.
func (s *UserService) GetEarnings(ctx context.Context, sellerID uuid.UUID, currency string, minimum int64) (*EarningsSummary, error) {
	db := s.db.WithContext(ctx)

	user, err := s.GetUserByID(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if !user.IsSeller() {
		return nil, ErrSellerOnly
	}

	summary := &EarningsSummary{
		Earnings:          user.Earnings,
		Currency:          currency,
		BankDetailsOnFile: user.Bank.IsComplete(),
		MinimumWithdrawal: minimum,
	}

	if err := db.Model(&models.Commission{}).Where("seller_id = ?", sellerID).
		Select("COUNT(*)").Scan(&summary.SalesCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count sales: %w", err)
	}
	if err := db.Model(&models.Commission{}).Where("seller_id = ?", sellerID).
		Select("COALESCE(SUM(commission_amount), 0)").Scan(&summary.CommissionPaid).Error; err != nil {
		return nil, fmt.Errorf("failed to sum commission: %w", err)
	}
	if err := db.Model(&models.Withdrawal{}).
		Where("user_id = ? AND status IN ?", sellerID, []models.WithdrawalStatus{models.WithdrawalStatusPending, models.WithdrawalStatusProcessing}).
		Count(&summary.OpenWithdrawals).Error; err != nil {
		return nil, fmt.Errorf("failed to count withdrawals: %w", err)
	}

	summary.CanRequestWithdraw = summary.BankDetailsOnFile && user.Earnings.Available >= minimum
	return summary, nil
}

// UpdateBankDetails resolves the account with the payment provider and stores
// the verified holder name.
func (s *UserService) UpdateBankDetails(ctx context.Context, sellerID uuid.UUID, req *BankDetailsRequest) (*models.User, error) {
	user, err := s.GetUserByID(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if !user.IsSeller() {
		return nil, ErrSellerOnly
	}

	info, err := s.gateway.ResolveAccount(ctx, gateway.BankAccount{
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
	})
	if err != nil {
		logrus.WithError(err).WithField("user_id", sellerID).Warn("Bank account resolution failed")
		return nil, fmt.Errorf("%w: %v", ErrBankResolution, err)
	}

	now := time.Now()
	user.Bank = models.BankAccount{
		Code:          req.BankCode,
		Name:          req.BankName,
		AccountNumber: req.AccountNumber,
		AccountName:   info.AccountName,
	}
	user.BankVerifiedAt = &now

	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"bank_code":           user.Bank.Code,
		"bank_name":           user.Bank.Name,
		"bank_account_number": user.Bank.AccountNumber,
		"bank_account_name":   user.Bank.AccountName,
		"bank_verified_at":    now,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to save bank details: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":   sellerID,
		"bank_code": req.BankCode,
	}).Info("Bank details updated")

	return user, nil
}
