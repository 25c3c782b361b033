package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/account"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/transfer"
	"github.com/stripe/stripe-go/v74/webhook"
)

const stripeName = "stripe"

// Stripe implements Gateway with Checkout Sessions for collection and
// Connect transfers for payouts. A seller's AccountNumber holds the id of
// their connected account (acct_...).
type Stripe struct {
	secretKey     string
	webhookSecret string
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	// Initialize Stripe
	stripe.Key = secretKey

	return &Stripe{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
	}
}

func (s *Stripe) Name() string { return stripeName }

func (s *Stripe) SignatureHeader() string { return "Stripe-Signature" }

func (s *Stripe) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	if s.secretKey == "" {
		return nil, ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.Reference),
		SuccessURL:        stripe.String(withReference(req.RedirectURL, req.Reference, "successful")),
		CancelURL:         stripe.String(withReference(req.RedirectURL, req.Reference, "cancelled")),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Title),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if req.Customer.Email != "" {
		params.CustomerEmail = stripe.String(req.Customer.Email)
	}
	params.Context = ctx
	params.AddMetadata("reference", req.Reference)
	for k, v := range req.Meta {
		params.AddMetadata(k, v)
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	return &InitializeResult{Status: StatusPending, HostedURL: sess.URL, GatewayTxID: sess.ID}, nil
}

func (s *Stripe) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if s.secretKey == "" {
		return nil, ErrNotConfigured
	}
	if req.GatewayTxID == "" {
		return nil, fmt.Errorf("stripe: verify needs a checkout session id")
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := session.Get(req.GatewayTxID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get checkout session: %w", err)
	}

	result := &VerifyResult{
		GatewayTxID: sess.ID,
		Reference:   sess.ClientReferenceID,
		PaidAmount:  sess.AmountTotal,
		Currency:    strings.ToUpper(string(sess.Currency)),
		Method:      "card",
	}

	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		result.Status = StatusSuccessful
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		result.Status = StatusFailed
		result.Message = "checkout session expired"
	default:
		result.Status = StatusPending
	}
	return result, nil
}

func (s *Stripe) ResolveAccount(ctx context.Context, acct BankAccount) (*AccountInfo, error) {
	if s.secretKey == "" {
		return nil, ErrNotConfigured
	}

	params := &stripe.AccountParams{}
	params.Context = ctx
	a, err := account.GetByID(acct.AccountNumber, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountNotFound, err)
	}
	if !a.PayoutsEnabled {
		return nil, fmt.Errorf("%w: payouts disabled on %s", ErrAccountNotFound, a.ID)
	}

	name := a.Email
	if a.BusinessProfile != nil && a.BusinessProfile.Name != "" {
		name = a.BusinessProfile.Name
	}
	return &AccountInfo{AccountNumber: a.ID, AccountName: name}, nil
}

func (s *Stripe) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if s.secretKey == "" {
		return nil, ErrNotConfigured
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Destination:   stripe.String(req.Account.AccountNumber),
		TransferGroup: stripe.String(req.Reference),
		Description:   stripe.String(req.Narration),
	}
	params.Context = ctx
	params.AddMetadata("reference", req.Reference)

	t, err := transfer.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create transfer: %w", err)
	}

	status := StatusPending
	if t.Reversed {
		status = StatusFailed
	}
	return &TransferResult{Status: status, TransferID: t.ID}, nil
}

func (s *Stripe) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	if s.webhookSecret == "" || signature == "" {
		return false
	}
	return webhook.ValidatePayload(rawBody, signature, s.webhookSecret) == nil
}

type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeObject struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentStatus     string            `json:"payment_status"`
	TransferGroup     string            `json:"transfer_group"`
	Metadata          map[string]string `json:"metadata"`
}

func (s *Stripe) ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	var evt stripeEvent
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var obj stripeObject
	if len(evt.Data.Object) > 0 {
		if err := json.Unmarshal(evt.Data.Object, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
	}

	event := &WebhookEvent{Type: evt.Type, GatewayID: obj.ID, Kind: EventOther}

	switch evt.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		event.Kind = EventPayment
		event.Reference = obj.ClientReferenceID
		event.Status = StatusPending
		if obj.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid) {
			event.Status = StatusSuccessful
		}
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		event.Kind = EventPayment
		event.Reference = obj.ClientReferenceID
		event.Status = StatusFailed
	case "transfer.created", "transfer.paid":
		event.Kind = EventTransfer
		event.Reference = transferReference(obj)
		event.Status = StatusSuccessful
	case "transfer.reversed", "transfer.failed":
		event.Kind = EventTransfer
		event.Reference = transferReference(obj)
		event.Status = StatusFailed
		event.Reason = "transfer reversed"
	}

	if event.Kind != EventOther && event.Reference == "" && event.GatewayID == "" {
		return nil, ErrMalformedEvent
	}
	return event, nil
}

func transferReference(obj stripeObject) string {
	if ref := obj.Metadata["reference"]; ref != "" {
		return ref
	}
	return obj.TransferGroup
}

func withReference(base, reference, status string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sreference=%s&status=%s", base, sep, reference, status)
}
