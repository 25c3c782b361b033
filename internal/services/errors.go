// internal/services/errors.go
package services

import (
	"net/http"

	"github.com/javajoker/digistore-backend/internal/i18n"
	"github.com/javajoker/digistore-backend/internal/utils"
)

// Domain errors. Services wrap these with fmt.Errorf("%w: ...") so the
// cause survives into logs while handlers still map them by code.
var (
	ErrUserNotFound         = utils.NewAppError("USER_NOT_FOUND", http.StatusNotFound, i18n.KeyUserNotFound)
	ErrUserExists           = utils.NewAppError("USER_EXISTS", http.StatusConflict, i18n.KeyAuthUserExists)
	ErrInvalidCredentials   = utils.NewAppError("INVALID_CREDENTIALS", http.StatusUnauthorized, i18n.KeyAuthInvalidCredentials)
	ErrInvalidUserType      = utils.NewAppError("INVALID_USER_TYPE", http.StatusBadRequest, i18n.KeyValidationInvalid).With("user_type")
	ErrAccountSuspended     = utils.NewAppError("ACCOUNT_SUSPENDED", http.StatusForbidden, i18n.KeyAuthAccountSuspended)
	ErrSellerOnly           = utils.NewAppError("SELLER_ONLY", http.StatusForbidden, i18n.KeyAuthSellerOnly)
	ErrAdminProtected       = utils.NewAppError("ADMIN_PROTECTED", http.StatusForbidden, i18n.KeyAdminAccessDenied)
	ErrCategoryNotFound     = utils.NewAppError("CATEGORY_NOT_FOUND", http.StatusNotFound, i18n.KeyCategoryNotFound)
	ErrCategoryExists       = utils.NewAppError("CATEGORY_EXISTS", http.StatusConflict, i18n.KeyCategoryExists)
	ErrFileNotFound         = utils.NewAppError("FILE_NOT_FOUND", http.StatusNotFound, i18n.KeyFileNotFound)
	ErrFileNotPurchasable   = utils.NewAppError("FILE_NOT_PURCHASABLE", http.StatusUnprocessableEntity, i18n.KeyFileNotPurchasable)
	ErrFileUploadFailed     = utils.NewAppError("FILE_UPLOAD_FAILED", http.StatusBadGateway, i18n.KeyFileUploadFailed)
	ErrFileTooLarge         = utils.NewAppError("FILE_TOO_LARGE", http.StatusRequestEntityTooLarge, i18n.KeyFileTooLarge)
	ErrFileTypeNotAllowed   = utils.NewAppError("FILE_TYPE_NOT_ALLOWED", http.StatusBadRequest, i18n.KeyValidationInvalid).With("file type")
	ErrSelfPurchase         = utils.NewAppError("SELF_PURCHASE", http.StatusBadRequest, i18n.KeyPaymentSelfPurchase)
	ErrAlreadyPurchased     = utils.NewAppError("ALREADY_PURCHASED", http.StatusConflict, i18n.KeyPaymentAlreadyPurchased)
	ErrPaymentInitFailed    = utils.NewAppError("PAYMENT_INIT_FAILED", http.StatusBadGateway, i18n.KeyPaymentInitFailed)
	ErrPaymentVerifyFailed  = utils.NewAppError("PAYMENT_VERIFY_FAILED", http.StatusBadGateway, i18n.KeyPaymentVerifyFailed)
	ErrPaymentPending       = utils.NewAppError("PAYMENT_PENDING", http.StatusAccepted, i18n.KeyPaymentPending)
	ErrPaymentFailed        = utils.NewAppError("PAYMENT_FAILED", http.StatusPaymentRequired, i18n.KeyPaymentFailed)
	ErrInvalidSignature     = utils.NewAppError("INVALID_SIGNATURE", http.StatusUnauthorized, i18n.KeyPaymentInvalidSignature)
	ErrInvalidWebhook       = utils.NewAppError("INVALID_WEBHOOK", http.StatusBadRequest, i18n.KeyValidationInvalid).With("webhook payload")
	ErrSettlementInProgress = utils.NewAppError("SETTLEMENT_IN_PROGRESS", http.StatusConflict, i18n.KeyPaymentInProgress)
	ErrTransactionNotFound  = utils.NewAppError("TRANSACTION_NOT_FOUND", http.StatusNotFound, i18n.KeyTransactionNotFound)
	ErrDownloadNotAllowed   = utils.NewAppError("DOWNLOAD_NOT_ALLOWED", http.StatusForbidden, i18n.KeyDownloadNotAllowed)
	ErrDownloadLimitReached = utils.NewAppError("DOWNLOAD_LIMIT_REACHED", http.StatusForbidden, i18n.KeyDownloadLimit)
	ErrDownloadExpired      = utils.NewAppError("DOWNLOAD_EXPIRED", http.StatusGone, i18n.KeyDownloadExpired)
	ErrDownloadUnavailable  = utils.NewAppError("DOWNLOAD_UNAVAILABLE", http.StatusServiceUnavailable, i18n.KeyDownloadUnavailable)
	ErrInsufficientBalance  = utils.NewAppError("INSUFFICIENT_BALANCE", http.StatusUnprocessableEntity, i18n.KeyInsufficientBalance)
	ErrBelowMinimum         = utils.NewAppError("BELOW_MINIMUM_WITHDRAWAL", http.StatusBadRequest, i18n.KeyBelowMinimum)
	ErrBankDetailsRequired  = utils.NewAppError("BANK_DETAILS_REQUIRED", http.StatusBadRequest, i18n.KeyBankDetailsMissing)
	ErrBankResolution       = utils.NewAppError("BANK_RESOLUTION_FAILED", http.StatusUnprocessableEntity, i18n.KeyBankResolution)
	ErrTransferFailed       = utils.NewAppError("TRANSFER_FAILED", http.StatusBadGateway, i18n.KeyTransferFailed)
	ErrWithdrawalNotFound   = utils.NewAppError("WITHDRAWAL_NOT_FOUND", http.StatusNotFound, i18n.KeyWithdrawalNotFound)
	ErrInvalidTransition    = utils.NewAppError("INVALID_STATE_TRANSITION", http.StatusConflict, i18n.KeyInvalidTransition)
	ErrLedgerInconsistent   = utils.NewAppError("LEDGER_INCONSISTENT", http.StatusInternalServerError, i18n.KeyLedgerInconsistent)
	ErrNotificationNotFound = utils.NewAppError("NOTIFICATION_NOT_FOUND", http.StatusNotFound, i18n.KeyNotificationNotFound)
)
