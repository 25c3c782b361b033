// Package gateway talks to the external payment provider: hosted checkout,
// payment verification, bank account resolution and payouts.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/javajoker/digistore-backend/internal/config"
)

// Normalised outcome of a payment or transfer.
const (
	StatusSuccessful = "successful"
	StatusFailed     = "failed"
	StatusPending    = "pending"
)

type EventKind string

const (
	EventPayment  EventKind = "payment"
	EventTransfer EventKind = "transfer"
	EventOther    EventKind = "other"
)

var (
	ErrNotConfigured   = errors.New("gateway: provider credentials are not configured")
	ErrMalformedEvent  = errors.New("gateway: malformed webhook event")
	ErrAccountNotFound = errors.New("gateway: bank account could not be resolved")
)

// APIError is a non-success answer from the provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

type Customer struct {
	Email string
	Name  string
}

type InitializeRequest struct {
	Reference   string
	Amount      int64 // minor units
	Currency    string
	Customer    Customer
	Title       string
	RedirectURL string
	Meta        map[string]string
}

type InitializeResult struct {
	Status      string
	HostedURL   string
	GatewayTxID string
}

// VerifyRequest identifies a payment by the provider's id when known and by
// our reference otherwise.
type VerifyRequest struct {
	GatewayTxID string
	Reference   string
}

type VerifyResult struct {
	Status      string
	GatewayTxID string
	Reference   string
	PaidAmount  int64 // minor units
	Currency    string
	Method      string
	Message     string
}

type BankAccount struct {
	BankCode      string
	AccountNumber string
}

type AccountInfo struct {
	AccountNumber string
	AccountName   string
}

type TransferRequest struct {
	Account     BankAccount
	Amount      int64 // minor units
	Currency    string
	Reference   string
	Narration   string
	CallbackURL string
}

type TransferResult struct {
	Status     string
	TransferID string
	Fee        int64 // minor units
	Message    string
}

// WebhookEvent is a provider notification reduced to what settlement needs.
type WebhookEvent struct {
	Kind      EventKind
	Type      string
	Reference string
	GatewayID string
	Status    string
	Reason    string
}

type Gateway interface {
	Name() string
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
	ResolveAccount(ctx context.Context, account BankAccount) (*AccountInfo, error)
	InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	// VerifyWebhookSignature checks the signature header against the raw,
	// unparsed request body.
	VerifyWebhookSignature(rawBody []byte, signature string) bool
	ParseWebhook(rawBody []byte) (*WebhookEvent, error)
	// SignatureHeader names the HTTP header carrying the webhook signature.
	SignatureHeader() string
}

// New builds the gateway selected by cfg.Provider.
func New(cfg config.PaymentConfig) (Gateway, error) {
	switch cfg.Provider {
	case config.ProviderFlutterwave:
		return NewFlutterwave(cfg.FlutterwaveBaseURL, cfg.FlutterwaveSecretKey, cfg.FlutterwaveWebhookHash), nil
	case config.ProviderStripe:
		return NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret), nil
	default:
		return nil, fmt.Errorf("gateway: unsupported provider %q", cfg.Provider)
	}
}
