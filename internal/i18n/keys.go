// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess       = "success"
	KeyError         = "error"
	KeyInternalError = "error.internal"
	KeyRateLimited   = "error.rate_limited"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthUserExists         = "auth.user_exists"
	KeyAuthAccountSuspended   = "auth.account_suspended"
	KeyAuthSellerOnly         = "auth.seller_only"

	// User Management
	KeyUserNotFound       = "user.not_found"
	KeyUserBankSaved      = "user.bank_saved"
	KeyBankDetailsMissing = "bank.details_required"
	KeyBankResolution     = "bank.resolution_failed"

	// Catalog
	KeyFileNotFound       = "file.not_found"
	KeyFileNotPurchasable = "file.not_purchasable"
	KeyFileUploadFailed   = "file.upload_failed"
	KeyFileTooLarge       = "file.too_large"
	KeyCategoryNotFound   = "category.not_found"
	KeyCategoryExists     = "category.exists"

	// Payments
	KeyPaymentAlreadyPurchased = "payment.already_purchased"
	KeyPaymentSelfPurchase     = "payment.self_purchase"
	KeyPaymentInitFailed       = "payment.init_failed"
	KeyPaymentVerifyFailed     = "payment.verify_failed"
	KeyPaymentPending          = "payment.pending"
	KeyPaymentFailed           = "payment.failed"
	KeyPaymentInvalidSignature = "payment.invalid_signature"
	KeyPaymentInProgress       = "payment.in_progress"
	KeyTransactionNotFound     = "transaction.not_found"

	// Downloads
	KeyDownloadNotAllowed  = "download.not_allowed"
	KeyDownloadLimit       = "download.limit_reached"
	KeyDownloadExpired     = "download.expired"
	KeyDownloadUnavailable = "download.unavailable"

	// Earnings and withdrawals
	KeyInsufficientBalance  = "withdrawal.insufficient_balance"
	KeyBelowMinimum         = "withdrawal.below_minimum"
	KeyTransferFailed       = "withdrawal.transfer_failed"
	KeyWithdrawalNotFound   = "withdrawal.not_found"
	KeyInvalidTransition    = "withdrawal.invalid_transition"
	KeyLedgerInconsistent   = "ledger.inconsistent"
	KeyNotificationNotFound = "notification.not_found"

	// Admin
	KeyAdminAccessDenied = "admin.access_denied"

	// Validation
	KeyValidationInvalid = "validation.invalid"

	// Notification titles
	KeyNotifyPurchaseTitle   = "notify.purchase.title"
	KeyNotifySaleTitle       = "notify.sale.title"
	KeyNotifyWithdrawalTitle = "notify.withdrawal.title"
)
