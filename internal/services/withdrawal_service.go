// internal/services/withdrawal_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/digistore-backend/internal/config"
	"github.com/javajoker/digistore-backend/internal/database"
	"github.com/javajoker/digistore-backend/internal/gateway"
	"github.com/javajoker/digistore-backend/internal/i18n"
	"github.com/javajoker/digistore-backend/internal/lock"
	"github.com/javajoker/digistore-backend/internal/metrics"
	"github.com/javajoker/digistore-backend/internal/models"
	"github.com/javajoker/digistore-backend/internal/utils"
)

const withdrawalLockTTL = time.Minute

type WithdrawalService struct {
	db       *gorm.DB
	cfg      config.PaymentConfig
	gateway  gateway.Gateway
	ledger   *EarningsLedger
	locker   lock.Locker
	notifier Notifier
	now      func() time.Time
}

type WithdrawalRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type CancelWithdrawalRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type WithdrawalFilter struct {
	Status models.WithdrawalStatus
	UserID *uuid.UUID
}

func NewWithdrawalService(db *gorm.DB, cfg config.PaymentConfig, gw gateway.Gateway, locker lock.Locker, notifier Notifier) *WithdrawalService {
	return &WithdrawalService{
		db:       db,
		cfg:      cfg,
		gateway:  gw,
		ledger:   NewEarningsLedger(),
		locker:   locker,
		notifier: notifier,
		now:      time.Now,
	}
}

// RequestWithdrawal reserves amount from the seller's available balance and
// queues a payout for an administrator.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, sellerID uuid.UUID, amount int64) (*models.Withdrawal, error) {
	db := s.db.WithContext(ctx)

	var seller models.User
	if err := db.First(&seller, "id = ?", sellerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load seller: %w", err)
	}
	if !seller.IsSeller() {
		return nil, ErrSellerOnly
	}
	if !seller.Bank.IsComplete() {
		return nil, ErrBankDetailsRequired
	}
	if amount < s.cfg.MinimumWithdrawal {
		return nil, ErrBelowMinimum.With(formatMinor(s.cfg.MinimumWithdrawal, s.cfg.Currency))
	}

	reference, err := utils.GenerateReference("WD")
	if err != nil {
		return nil, fmt.Errorf("failed to generate reference: %w", err)
	}

	withdrawal := &models.Withdrawal{
		UserID:    sellerID,
		Amount:    amount,
		Currency:  s.cfg.Currency,
		Reference: reference,
		Bank:      seller.Bank,
		Status:    models.WithdrawalStatusPending,
	}

	err = database.WithTransaction(db, func(tx *gorm.DB) error {
		if err := s.ledger.Reserve(tx, sellerID, amount); err != nil {
			return err
		}
		if err := tx.Create(withdrawal).Error; err != nil {
			return fmt.Errorf("failed to create withdrawal: %w", err)
		}
		alert := &models.AdminNotification{
			Type:                string(models.NotificationWithdrawalRequested),
			Title:               "Withdrawal awaiting approval",
			Message:             fmt.Sprintf("%s requested %s", seller.Username, formatMinor(amount, withdrawal.Currency)),
			Priority:            "medium",
			RelatedResourceType: "withdrawal",
			RelatedResourceID:   &withdrawal.ID,
		}
		if err := tx.Create(alert).Error; err != nil {
			return fmt.Errorf("failed to queue admin notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncWithdrawal(string(models.WithdrawalStatusPending))
	logrus.WithFields(logrus.Fields{
		"withdrawal_id": withdrawal.ID,
		"seller_id":     sellerID,
		"amount":        amount,
	}).Info("Withdrawal requested")

	s.notify(ctx, withdrawal, models.NotificationWithdrawalRequested,
		fmt.Sprintf("Your withdrawal of %s is awaiting approval.", formatMinor(amount, withdrawal.Currency)))
	return withdrawal, nil
}

// ProcessWithdrawal approves a pending withdrawal and starts the bank
// transfer. A rejected transfer fails the withdrawal and refunds the seller.
func (s *WithdrawalService) ProcessWithdrawal(ctx context.Context, adminID, withdrawalID uuid.UUID) (*models.Withdrawal, error) {
	var result *models.Withdrawal
	err := s.withLock(ctx, withdrawalID.String(), func() error {
		w, err := s.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if !w.Status.CanTransitionTo(models.WithdrawalStatusProcessing) {
			return fmt.Errorf("%w: withdrawal is %s", ErrInvalidTransition, w.Status)
		}

		logger := logrus.WithFields(logrus.Fields{"withdrawal_id": w.ID, "reference": w.Reference})

		account := gateway.BankAccount{BankCode: w.Bank.Code, AccountNumber: w.Bank.AccountNumber}
		if _, err := s.gateway.ResolveAccount(ctx, account); err != nil {
			logger.WithError(err).Warn("Bank account resolution failed")
			return fmt.Errorf("%w: %v", ErrBankResolution, err)
		}

		now := s.now()
		if err := s.transition(s.db.WithContext(ctx), w.ID, w.Status, models.WithdrawalStatusProcessing, map[string]interface{}{
			"processed_by": adminID,
			"processed_at": now,
		}); err != nil {
			return err
		}
		metrics.IncWithdrawal(string(models.WithdrawalStatusProcessing))

		transfer, err := s.gateway.InitiateTransfer(ctx, gateway.TransferRequest{
			Account:     account,
			Amount:      w.Amount,
			Currency:    w.Currency,
			Reference:   w.Reference,
			Narration:   "DigiStore payout " + w.Reference,
			CallbackURL: s.cfg.TransferCallbackURL,
		})
		if err == nil && transfer.Status == gateway.StatusFailed {
			err = errors.New(transfer.Message)
		}
		if err != nil {
			reason := "transfer rejected: " + err.Error()
			logger.WithError(err).Warn("Transfer initiation failed, refunding seller")
			if ferr := s.fail(ctx, w, reason); ferr != nil {
				return ferr
			}
			result, _ = s.GetWithdrawal(ctx, w.ID)
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}

		if err := s.db.WithContext(ctx).Model(&models.Withdrawal{}).Where("id = ?", w.ID).Updates(map[string]interface{}{
			"transfer_id":  transfer.TransferID,
			"transfer_fee": transfer.Fee,
		}).Error; err != nil {
			logger.WithError(err).Error("Failed to store transfer id")
		}
		logger.WithField("transfer_id", transfer.TransferID).Info("Transfer initiated")

		result, err = s.GetWithdrawal(ctx, w.ID)
		return err
	})
	return result, err
}

// HandleTransferWebhook finalises a processing withdrawal from a provider
// transfer event. Events for withdrawals in any other state are ignored.
func (s *WithdrawalService) HandleTransferWebhook(ctx context.Context, evt *gateway.WebhookEvent) error {
	var w models.Withdrawal
	query := s.db.WithContext(ctx).Where("reference = ?", evt.Reference)
	if evt.Reference == "" {
		query = s.db.WithContext(ctx).Where("transfer_id = ?", evt.GatewayID)
	}
	if err := query.First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithField("reference", evt.Reference).Warn("Transfer webhook for unknown withdrawal")
			return nil
		}
		return fmt.Errorf("failed to load withdrawal: %w", err)
	}

	return s.withLock(ctx, w.ID.String(), func() error {
		current, err := s.GetWithdrawal(ctx, w.ID)
		if err != nil {
			return err
		}
		if current.Status != models.WithdrawalStatusProcessing {
			return nil
		}

		switch evt.Status {
		case gateway.StatusSuccessful:
			return s.complete(ctx, current, evt.GatewayID)
		case gateway.StatusFailed:
			reason := evt.Reason
			if reason == "" {
				reason = "transfer failed"
			}
			return s.fail(ctx, current, reason)
		default:
			return nil
		}
	})
}

// CancelWithdrawal stops a withdrawal that still holds funds and returns
// them to the seller's available balance.
func (s *WithdrawalService) CancelWithdrawal(ctx context.Context, adminID, withdrawalID uuid.UUID, reason string) (*models.Withdrawal, error) {
	var result *models.Withdrawal
	err := s.withLock(ctx, withdrawalID.String(), func() error {
		w, err := s.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if !w.Status.CanTransitionTo(models.WithdrawalStatusCancelled) {
			return fmt.Errorf("%w: withdrawal is %s", ErrInvalidTransition, w.Status)
		}

		now := s.now()
		err = database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
			updates := map[string]interface{}{
				"cancel_reason": reason,
				"cancelled_at":  now,
			}
			if w.ProcessedBy == nil {
				updates["processed_by"] = adminID
				updates["processed_at"] = now
			}
			if err := s.transition(tx, w.ID, w.Status, models.WithdrawalStatusCancelled, updates); err != nil {
				return err
			}
			return s.ledger.Release(tx, w.UserID, w.Amount)
		})
		if err != nil {
			return err
		}

		metrics.IncWithdrawal(string(models.WithdrawalStatusCancelled))
		logrus.WithFields(logrus.Fields{"withdrawal_id": w.ID, "admin_id": adminID}).Info("Withdrawal cancelled")

		s.notify(ctx, w, models.NotificationWithdrawalCancelled,
			fmt.Sprintf("Your withdrawal of %s was cancelled: %s. The amount is back in your balance.", formatMinor(w.Amount, w.Currency), reason))

		result, err = s.GetWithdrawal(ctx, w.ID)
		return err
	})
	return result, err
}

func (s *WithdrawalService) complete(ctx context.Context, w *models.Withdrawal, transferID string) error {
	now := s.now()
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		updates := map[string]interface{}{"completed_at": now}
		if w.TransferID == "" && transferID != "" {
			updates["transfer_id"] = transferID
		}
		if err := s.transition(tx, w.ID, models.WithdrawalStatusProcessing, models.WithdrawalStatusCompleted, updates); err != nil {
			return err
		}
		return s.ledger.Settle(tx, w.UserID, w.Amount)
	})
	if err != nil {
		return err
	}

	metrics.IncWithdrawal(string(models.WithdrawalStatusCompleted))
	metrics.AddWithdrawn(w.Currency, w.Amount)
	logrus.WithFields(logrus.Fields{"withdrawal_id": w.ID, "amount": w.Amount}).Info("Withdrawal completed")

	s.notify(ctx, w, models.NotificationWithdrawalCompleted,
		fmt.Sprintf("%s has been paid to your bank account.", formatMinor(w.Amount, w.Currency)))
	return nil
}

func (s *WithdrawalService) fail(ctx context.Context, w *models.Withdrawal, reason string) error {
	now := s.now()
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := s.transition(tx, w.ID, models.WithdrawalStatusProcessing, models.WithdrawalStatusFailed, map[string]interface{}{
			"failure_reason": reason,
			"failed_at":      now,
		}); err != nil {
			return err
		}
		return s.ledger.Release(tx, w.UserID, w.Amount)
	})
	if err != nil {
		return err
	}

	metrics.IncWithdrawal(string(models.WithdrawalStatusFailed))
	logrus.WithFields(logrus.Fields{"withdrawal_id": w.ID, "reason": reason}).Warn("Withdrawal failed")

	s.notify(ctx, w, models.NotificationWithdrawalFailed,
		fmt.Sprintf("Your withdrawal of %s failed and the amount is back in your balance.", formatMinor(w.Amount, w.Currency)))
	return nil
}

// transition applies from -> to with a conditional update so a concurrent
// change is detected instead of overwritten.
func (s *WithdrawalService) transition(tx *gorm.DB, id uuid.UUID, from, to models.WithdrawalStatus, updates map[string]interface{}) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	updates["status"] = to
	res := tx.Model(&models.Withdrawal{}).Where("id = ? AND status = ?", id, from).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update withdrawal: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: withdrawal is no longer %s", ErrInvalidTransition, from)
	}
	return nil
}

func (s *WithdrawalService) withLock(ctx context.Context, key string, fn func() error) error {
	err := lock.WithLock(ctx, s.locker, "withdrawal:"+key, withdrawalLockTTL, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return fmt.Errorf("%w: withdrawal is being updated", ErrInvalidTransition)
	}
	return err
}

func (s *WithdrawalService) notify(ctx context.Context, w *models.Withdrawal, kind models.NotificationType, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, w.UserID, kind, i18n.T("en", i18n.KeyNotifyWithdrawalTitle), message, map[string]interface{}{
		"withdrawal_id": w.ID.String(),
		"reference":     w.Reference,
		"amount":        w.Amount,
	})
}

func (s *WithdrawalService) GetWithdrawal(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := s.db.WithContext(ctx).First(&w, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to load withdrawal: %w", err)
	}
	return &w, nil
}

func (s *WithdrawalService) ListWithdrawals(ctx context.Context, userID uuid.UUID, params utils.PaginationParams) ([]models.Withdrawal, int64, error) {
	return s.ListAllWithdrawals(ctx, WithdrawalFilter{UserID: &userID}, params)
}

func (s *WithdrawalService) ListAllWithdrawals(ctx context.Context, filter WithdrawalFilter, params utils.PaginationParams) ([]models.Withdrawal, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Withdrawal{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count withdrawals: %w", err)
	}

	allowedSortFields := []string{"created_at", "amount", "status", "processed_at"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var withdrawals []models.Withdrawal
	if err := query.Find(&withdrawals).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch withdrawals: %w", err)
	}
	return withdrawals, total, nil
}
