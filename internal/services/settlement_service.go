// internal/services/settlement_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/digistore-backend/internal/commission"
	"github.com/javajoker/digistore-backend/internal/config"
	"github.com/javajoker/digistore-backend/internal/database"
	"github.com/javajoker/digistore-backend/internal/gateway"
	"github.com/javajoker/digistore-backend/internal/i18n"
	"github.com/javajoker/digistore-backend/internal/lock"
	"github.com/javajoker/digistore-backend/internal/metrics"
	"github.com/javajoker/digistore-backend/internal/models"
	"github.com/javajoker/digistore-backend/internal/utils"
)

const (
	settleLockTTL  = 30 * time.Second
	downloadURLTTL = 15 * time.Minute
)

// Notifier delivers user notifications without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind models.NotificationType, title, message string, data map[string]interface{})
}

// DownloadSigner issues short-lived download URLs for stored objects.
type DownloadSigner interface {
	PresignDownload(key string, ttl time.Duration) (string, error)
}

// TransferHandler settles payout webhooks.
type TransferHandler interface {
	HandleTransferWebhook(ctx context.Context, evt *gateway.WebhookEvent) error
}

type SettlementService struct {
	db         *gorm.DB
	cfg        config.PaymentConfig
	gateway    gateway.Gateway
	calculator *commission.Calculator
	ledger     *EarningsLedger
	locker     lock.Locker
	notifier   Notifier
	storage    DownloadSigner
	transfers  TransferHandler
	now        func() time.Time
}

type PurchaseInit struct {
	Transaction *models.Transaction `json:"transaction"`
	PaymentURL  string              `json:"payment_url"`
	Reference   string              `json:"reference"`
}

type DownloadLink struct {
	URL                string    `json:"url"`
	ExpiresAt          time.Time `json:"expires_at"`
	RemainingDownloads int       `json:"remaining_downloads"`
}

type InitializePurchaseRequest struct {
	FileID string `json:"file_id" validate:"required,uuid"`
}

type VerifyPaymentRequest struct {
	Reference string `json:"reference" validate:"required,max=64"`
}

func NewSettlementService(
	db *gorm.DB,
	cfg config.PaymentConfig,
	gw gateway.Gateway,
	locker lock.Locker,
	notifier Notifier,
	storage DownloadSigner,
	transfers TransferHandler,
) *SettlementService {
	return &SettlementService{
		db:         db,
		cfg:        cfg,
		gateway:    gw,
		calculator: commission.NewCalculator(cfg.CommissionRate),
		ledger:     NewEarningsLedger(),
		locker:     locker,
		notifier:   notifier,
		storage:    storage,
		transfers:  transfers,
		now:        time.Now,
	}
}

// InitializePurchase opens a pending transaction for the file and returns the
// provider's hosted payment page.
func (s *SettlementService) InitializePurchase(ctx context.Context, buyerID, fileID uuid.UUID) (*PurchaseInit, error) {
	db := s.db.WithContext(ctx)

	var file models.File
	if err := db.First(&file, "id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	if !file.Purchasable() {
		return nil, ErrFileNotPurchasable
	}
	if file.SellerID == buyerID {
		return nil, ErrSelfPurchase
	}

	var buyer models.User
	if err := db.First(&buyer, "id = ?", buyerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load buyer: %w", err)
	}

	var owned int64
	if err := db.Model(&models.Transaction{}).
		Where("buyer_id = ? AND file_id = ? AND status = ?", buyerID, fileID, models.TransactionStatusSuccessful).
		Count(&owned).Error; err != nil {
		return nil, fmt.Errorf("failed to check previous purchases: %w", err)
	}
	if owned > 0 {
		return nil, ErrAlreadyPurchased
	}

	split, err := s.calculator.Split(file.Price, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to split price: %w", err)
	}

	reference, err := utils.GenerateReference("DGS")
	if err != nil {
		return nil, fmt.Errorf("failed to generate reference: %w", err)
	}

	currency := file.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	txn := &models.Transaction{
		PaymentReference: reference,
		Provider:         s.gateway.Name(),
		BuyerID:          buyerID,
		SellerID:         file.SellerID,
		FileID:           file.ID,
		Amount:           file.Price,
		Currency:         currency,
		Status:           models.TransactionStatusPending,
		DownloadLimit:    s.cfg.DownloadLimit,
		Metadata: models.JSONB{
			"file_title": file.Title,
		},
	}
	txn.ApplySplit(split)

	if err := db.Create(txn).Error; err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	logger := logrus.WithFields(logrus.Fields{
		"reference": reference,
		"buyer_id":  buyerID,
		"file_id":   fileID,
		"amount":    txn.Amount,
	})

	result, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Reference:   reference,
		Amount:      txn.Amount,
		Currency:    currency,
		Customer:    gateway.Customer{Email: buyer.Email, Name: buyer.Username},
		Title:       file.Title,
		RedirectURL: s.cfg.RedirectURL,
		Meta: map[string]string{
			"transaction_id": txn.ID.String(),
			"file_id":        file.ID.String(),
			"buyer_id":       buyerID.String(),
		},
	})
	if err == nil && result.Status == gateway.StatusFailed {
		err = errors.New("provider rejected checkout")
	}
	if err != nil {
		// Nothing was charged; drop the row so it never reaches the reconciler.
		if delErr := db.Unscoped().Delete(&models.Transaction{}, "id = ?", txn.ID).Error; delErr != nil {
			logger.WithError(delErr).Error("Failed to remove transaction after checkout error")
		}
		logger.WithError(err).Warn("Payment initialization failed")
		return nil, fmt.Errorf("%w: %v", ErrPaymentInitFailed, err)
	}

	if result.GatewayTxID != "" {
		if err := db.Model(txn).Update("gateway_tx_id", result.GatewayTxID).Error; err != nil {
			logger.WithError(err).Warn("Failed to store gateway transaction id")
		}
		txn.GatewayTxID = result.GatewayTxID
	}

	metrics.IncSettlement("initiated")
	logger.Info("Payment initialized")

	return &PurchaseInit{Transaction: txn, PaymentURL: result.HostedURL, Reference: reference}, nil
}

// ConfirmPurchase asks the gateway for the outcome of a payment and settles
// it exactly once. It backs the verify endpoint, the webhook and the
// reconciler, and may be called any number of times for the same reference.
func (s *SettlementService) ConfirmPurchase(ctx context.Context, reference string) (*models.Transaction, error) {
	txn, err := s.findByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.Status.IsSettled() {
		return settledOutcome(txn)
	}

	token, err := s.locker.TryLock(ctx, "settle:"+reference, settleLockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, ErrSettlementInProgress
		}
		return nil, fmt.Errorf("failed to acquire settlement lock: %w", err)
	}
	defer func() {
		if err := s.locker.Unlock(context.Background(), "settle:"+reference, token); err != nil {
			logrus.WithError(err).WithField("reference", reference).Warn("Failed to release settlement lock")
		}
	}()

	// Another holder may have settled it while we waited.
	txn, err = s.findByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.Status.IsSettled() {
		return settledOutcome(txn)
	}

	logger := logrus.WithFields(logrus.Fields{"reference": reference, "transaction_id": txn.ID})

	result, err := s.gateway.Verify(ctx, gateway.VerifyRequest{GatewayTxID: txn.GatewayTxID, Reference: txn.PaymentReference})
	if err != nil {
		logger.WithError(err).Warn("Payment verification failed, transaction left pending")
		return nil, fmt.Errorf("%w: %v", ErrPaymentVerifyFailed, err)
	}

	switch result.Status {
	case gateway.StatusSuccessful:
		if result.Reference != "" && result.Reference != txn.PaymentReference {
			logger.WithField("gateway_reference", result.Reference).Error("Gateway returned a payment for another reference")
			return nil, fmt.Errorf("%w: reference mismatch", ErrPaymentVerifyFailed)
		}
		if result.PaidAmount < txn.Amount {
			return s.fail(ctx, txn, fmt.Sprintf("underpaid: received %d of %d", result.PaidAmount, txn.Amount))
		}
		if result.Currency != "" && !strings.EqualFold(result.Currency, txn.Currency) {
			return s.fail(ctx, txn, fmt.Sprintf("currency mismatch: received %s, expected %s", result.Currency, txn.Currency))
		}
		return s.settle(ctx, txn, result)

	case gateway.StatusFailed:
		reason := result.Message
		if reason == "" {
			reason = "payment failed at gateway"
		}
		return s.fail(ctx, txn, reason)

	default:
		return txn, ErrPaymentPending
	}
}

func settledOutcome(txn *models.Transaction) (*models.Transaction, error) {
	if txn.Status == models.TransactionStatusSuccessful {
		return txn, nil
	}
	return txn, fmt.Errorf("%w: transaction is %s", ErrPaymentFailed, txn.Status)
}

func (s *SettlementService) settle(ctx context.Context, txn *models.Transaction, result *gateway.VerifyResult) (*models.Transaction, error) {
	now := s.now()
	expiry := now.AddDate(0, 0, s.cfg.DownloadExpiryDays)
	settled := false

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":          models.TransactionStatusSuccessful,
			"paid_at":         now,
			"payment_method":  result.Method,
			"download_expiry": expiry,
		}
		if result.GatewayTxID != "" {
			updates["gateway_tx_id"] = result.GatewayTxID
		}

		res := tx.Model(&models.Transaction{}).
			Where("id = ? AND status = ?", txn.ID, models.TransactionStatusPending).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to mark transaction successful: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		settled = true

		if err := s.ledger.Credit(tx, txn.SellerID, txn.SellerEarning); err != nil {
			return err
		}

		record := &models.Commission{
			TransactionID:  txn.ID,
			SellerID:       txn.SellerID,
			SaleAmount:     txn.Amount,
			CommissionRate: txn.CommissionRate,
			Status:         models.CommissionStatusConfirmed,
			ConfirmedAt:    &now,
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to record commission: %w", err)
		}
		if record.CommissionAmount != txn.PlatformCommission {
			return fmt.Errorf("%w: commission %d differs from transaction split %d",
				ErrLedgerInconsistent, record.CommissionAmount, txn.PlatformCommission)
		}

		return tx.Model(&models.File{}).Where("id = ?", txn.FileID).
			UpdateColumn("sales_count", gorm.Expr("sales_count + 1")).Error
	})
	if err != nil {
		logrus.WithError(err).WithField("reference", txn.PaymentReference).Error("Settlement failed")
		return nil, err
	}

	fresh, err := s.findByReference(ctx, txn.PaymentReference)
	if err != nil {
		return nil, err
	}
	if !settled {
		return settledOutcome(fresh)
	}

	metrics.IncSettlement(string(models.TransactionStatusSuccessful))
	metrics.AddSale(fresh.Currency, fresh.Amount, fresh.PlatformCommission)
	logrus.WithFields(logrus.Fields{
		"reference":     fresh.PaymentReference,
		"seller_id":     fresh.SellerID,
		"amount":        fresh.Amount,
		"commission":    fresh.PlatformCommission,
		"seller_amount": fresh.SellerEarning,
	}).Info("Purchase settled")

	s.notifySettled(ctx, fresh)
	return fresh, nil
}

func (s *SettlementService) notifySettled(ctx context.Context, txn *models.Transaction) {
	if s.notifier == nil {
		return
	}
	title, _ := txn.Metadata["file_title"].(string)
	data := map[string]interface{}{
		"transaction_id": txn.ID.String(),
		"reference":      txn.PaymentReference,
		"file_id":        txn.FileID.String(),
	}

	s.notifier.Notify(ctx, txn.BuyerID, models.NotificationPurchaseCompleted,
		i18n.T("en", i18n.KeyNotifyPurchaseTitle),
		fmt.Sprintf("Your purchase of %q is ready to download.", title), data)

	s.notifier.Notify(ctx, txn.SellerID, models.NotificationSaleCompleted,
		i18n.T("en", i18n.KeyNotifySaleTitle),
		fmt.Sprintf("You sold %q. %s has been added to your balance.", title, formatMinor(txn.SellerEarning, txn.Currency)), data)
}

func (s *SettlementService) fail(ctx context.Context, txn *models.Transaction, reason string) (*models.Transaction, error) {
	if err := s.transition(ctx, txn.ID, models.TransactionStatusFailed, reason); err != nil {
		return nil, err
	}
	fresh, err := s.findByReference(ctx, txn.PaymentReference)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"reference": txn.PaymentReference, "reason": reason}).Info("Payment failed")
	return fresh, fmt.Errorf("%w: %s", ErrPaymentFailed, reason)
}

// transition moves a pending transaction to a terminal failure state. A row
// that already left pending is left untouched.
func (s *SettlementService) transition(ctx context.Context, id uuid.UUID, next models.TransactionStatus, reason string) error {
	if !models.TransactionStatusPending.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	res := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Updates(map[string]interface{}{"status": next, "failure_reason": reason})
	if res.Error != nil {
		return fmt.Errorf("failed to mark transaction %s: %w", next, res.Error)
	}
	if res.RowsAffected > 0 {
		metrics.IncSettlement(string(next))
	}
	return nil
}

// HandleWebhook authenticates a provider callback and routes it. Payment
// events are settled through ConfirmPurchase, so the event body itself is
// never trusted for the outcome.
func (s *SettlementService) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	provider := s.gateway.Name()
	if !s.gateway.VerifyWebhookSignature(rawBody, signature) {
		metrics.IncWebhook(provider, "invalid_signature")
		logrus.WithField("provider", provider).Warn("Rejected webhook with invalid signature")
		return ErrInvalidSignature
	}

	evt, err := s.gateway.ParseWebhook(rawBody)
	if err != nil {
		metrics.IncWebhook(provider, "malformed")
		return fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	logger := logrus.WithFields(logrus.Fields{
		"provider":  provider,
		"event":     evt.Type,
		"reference": evt.Reference,
	})

	switch evt.Kind {
	case gateway.EventPayment:
		err = s.handlePaymentEvent(ctx, evt)
	case gateway.EventTransfer:
		if s.transfers == nil {
			logger.Warn("Transfer webhook received without a transfer handler")
			break
		}
		err = s.transfers.HandleTransferWebhook(ctx, evt)
	default:
		metrics.IncWebhook(provider, "ignored")
		logger.Debug("Ignoring webhook event")
		return nil
	}

	if err != nil {
		metrics.IncWebhook(provider, "error")
		logger.WithError(err).Warn("Webhook processing failed")
		return err
	}
	metrics.IncWebhook(provider, "processed")
	return nil
}

func (s *SettlementService) handlePaymentEvent(ctx context.Context, evt *gateway.WebhookEvent) error {
	db := s.db.WithContext(ctx)

	var txn models.Transaction
	query := db.Where("payment_reference = ?", evt.Reference)
	if evt.Reference == "" {
		query = db.Where("gateway_tx_id = ?", evt.GatewayID)
	}
	if err := query.First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithField("reference", evt.Reference).Warn("Webhook for unknown payment reference")
			return nil
		}
		return fmt.Errorf("failed to load transaction: %w", err)
	}

	if txn.GatewayTxID == "" && evt.GatewayID != "" {
		if err := db.Model(&models.Transaction{}).
			Where("id = ? AND (gateway_tx_id = '' OR gateway_tx_id IS NULL)", txn.ID).
			Update("gateway_tx_id", evt.GatewayID).Error; err != nil {
			return fmt.Errorf("failed to record gateway transaction id: %w", err)
		}
	}

	_, err := s.ConfirmPurchase(ctx, txn.PaymentReference)
	switch {
	case err == nil,
		errors.Is(err, ErrPaymentPending),
		errors.Is(err, ErrPaymentFailed),
		errors.Is(err, ErrSettlementInProgress):
		// Final or in-flight outcomes are acknowledged; only verification
		// errors ask the provider to retry.
		return nil
	default:
		return err
	}
}

func (s *SettlementService) ListPurchases(ctx context.Context, buyerID uuid.UUID, params utils.PaginationParams) ([]models.Transaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("buyer_id = ?", buyerID)
	return s.list(query, params)
}

func (s *SettlementService) ListSales(ctx context.Context, sellerID uuid.UUID, params utils.PaginationParams) ([]models.Transaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("seller_id = ? AND status = ?", sellerID, models.TransactionStatusSuccessful)
	return s.list(query, params)
}

func (s *SettlementService) list(query *gorm.DB, params utils.PaginationParams) ([]models.Transaction, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	allowedSortFields := []string{"created_at", "amount", "paid_at", "status"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var transactions []models.Transaction
	if err := query.Preload("File").Find(&transactions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	return transactions, total, nil
}

// GetTransaction returns a transaction visible to userID as buyer or seller.
func (s *SettlementService) GetTransaction(ctx context.Context, userID, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.WithContext(ctx).Preload("File").
		Where("id = ? AND (buyer_id = ? OR seller_id = ?)", id, userID, userID).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return &txn, nil
}

// GetDownloadLink consumes one download of a successful purchase and returns
// a presigned URL for the file.
func (s *SettlementService) GetDownloadLink(ctx context.Context, buyerID, transactionID uuid.UUID) (*DownloadLink, error) {
	db := s.db.WithContext(ctx)

	var txn models.Transaction
	if err := db.Preload("File").Where("id = ? AND buyer_id = ?", transactionID, buyerID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}

	now := s.now()
	switch {
	case txn.Status != models.TransactionStatusSuccessful:
		return nil, ErrDownloadNotAllowed
	case txn.DownloadExpiry != nil && !now.Before(*txn.DownloadExpiry):
		return nil, ErrDownloadExpired
	case txn.DownloadCount >= txn.DownloadLimit:
		return nil, ErrDownloadLimitReached
	case txn.File == nil || txn.File.StorageKey == "":
		return nil, ErrDownloadUnavailable
	}

	url, err := s.storage.PresignDownload(txn.File.StorageKey, downloadURLTTL)
	if err != nil {
		logrus.WithError(err).WithField("transaction_id", txn.ID).Error("Failed to presign download")
		return nil, fmt.Errorf("%w: %v", ErrDownloadUnavailable, err)
	}

	res := db.Model(&models.Transaction{}).
		Where("id = ? AND status = ? AND download_count < download_limit", txn.ID, models.TransactionStatusSuccessful).
		Updates(map[string]interface{}{
			"download_count":   gorm.Expr("download_count + 1"),
			"last_download_at": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to record download: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrDownloadLimitReached
	}

	return &DownloadLink{
		URL:                url,
		ExpiresAt:          now.Add(downloadURLTTL),
		RemainingDownloads: txn.DownloadLimit - txn.DownloadCount - 1,
	}, nil
}

// ListPendingOlderThan returns the oldest pending transactions created before cutoff.
func (s *SettlementService) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.TransactionStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&transactions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	return transactions, nil
}

// ExpireTransaction abandons a pending checkout. It is a no-op for
// transactions that already settled.
func (s *SettlementService) ExpireTransaction(ctx context.Context, reference, reason string) error {
	txn, err := s.findByReference(ctx, reference)
	if err != nil {
		return err
	}
	return s.transition(ctx, txn.ID, models.TransactionStatusCancelled, reason)
}

// VerifyPurchase is ConfirmPurchase on behalf of a buyer. References that
// belong to someone else report TRANSACTION_NOT_FOUND before the gateway is
// contacted.
func (s *SettlementService) VerifyPurchase(ctx context.Context, buyerID uuid.UUID, reference string) (*models.Transaction, error) {
	txn, err := s.findByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.BuyerID != buyerID {
		return nil, ErrTransactionNotFound
	}
	return s.ConfirmPurchase(ctx, reference)
}

func (s *SettlementService) findByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := s.db.WithContext(ctx).Where("payment_reference = ?", reference).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return &txn, nil
}
