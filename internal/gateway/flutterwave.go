package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const flutterwaveName = "flutterwave"

// Flutterwave implements Gateway against the Flutterwave v3 REST API.
type Flutterwave struct {
	baseURL     string
	secretKey   string
	webhookHash string
	client      *http.Client
}

func NewFlutterwave(baseURL, secretKey, webhookHash string) *Flutterwave {
	if baseURL == "" {
		baseURL = "https://api.flutterwave.com/v3"
	}
	return &Flutterwave{
		baseURL:     strings.TrimRight(baseURL, "/"),
		secretKey:   secretKey,
		webhookHash: webhookHash,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *Flutterwave) Name() string { return flutterwaveName }

func (f *Flutterwave) SignatureHeader() string { return "flutterwave-signature" }

type flwEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type flwCustomer struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type flwCustomizations struct {
	Title string `json:"title,omitempty"`
}

type flwPaymentRequest struct {
	TxRef          string            `json:"tx_ref"`
	Amount         json.Number       `json:"amount"`
	Currency       string            `json:"currency"`
	RedirectURL    string            `json:"redirect_url,omitempty"`
	Customer       flwCustomer       `json:"customer"`
	Meta           map[string]string `json:"meta,omitempty"`
	Customizations flwCustomizations `json:"customizations"`
}

type flwPaymentLink struct {
	Link string `json:"link"`
}

type flwTransaction struct {
	ID          int64   `json:"id"`
	TxRef       string  `json:"tx_ref"`
	Status      string  `json:"status"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	PaymentType string  `json:"payment_type"`
	Processor   string  `json:"processor_response"`
}

type flwResolveRequest struct {
	AccountNumber string `json:"account_number"`
	AccountBank   string `json:"account_bank"`
}

type flwResolvedAccount struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

type flwTransferRequest struct {
	AccountBank   string      `json:"account_bank"`
	AccountNumber string      `json:"account_number"`
	Amount        json.Number `json:"amount"`
	Narration     string      `json:"narration,omitempty"`
	Currency      string      `json:"currency"`
	Reference     string      `json:"reference"`
	CallbackURL   string      `json:"callback_url,omitempty"`
	DebitCurrency string      `json:"debit_currency,omitempty"`
}

type flwTransfer struct {
	ID              int64   `json:"id"`
	Status          string  `json:"status"`
	Reference       string  `json:"reference"`
	Fee             float64 `json:"fee"`
	CompleteMessage string  `json:"complete_message"`
}

type flwWebhook struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type flwWebhookData struct {
	ID              int64  `json:"id"`
	TxRef           string `json:"tx_ref"`
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	CompleteMessage string `json:"complete_message"`
}

func (f *Flutterwave) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	payload := flwPaymentRequest{
		TxRef:          req.Reference,
		Amount:         toMajor(req.Amount),
		Currency:       req.Currency,
		RedirectURL:    req.RedirectURL,
		Customer:       flwCustomer{Email: req.Customer.Email, Name: req.Customer.Name},
		Meta:           req.Meta,
		Customizations: flwCustomizations{Title: req.Title},
	}

	var link flwPaymentLink
	if _, err := f.do(ctx, http.MethodPost, "/payments", payload, &link); err != nil {
		return nil, err
	}
	if link.Link == "" {
		return nil, &APIError{Provider: flutterwaveName, StatusCode: http.StatusOK, Message: "empty checkout link"}
	}

	// Flutterwave assigns the transaction id only once the customer pays.
	return &InitializeResult{Status: StatusPending, HostedURL: link.Link}, nil
}

func (f *Flutterwave) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	var path string
	switch {
	case req.GatewayTxID != "":
		path = "/transactions/" + url.PathEscape(req.GatewayTxID) + "/verify"
	case req.Reference != "":
		path = "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(req.Reference)
	default:
		return nil, fmt.Errorf("flutterwave: verify needs a transaction id or reference")
	}

	var txn flwTransaction
	status, err := f.do(ctx, http.MethodGet, path, nil, &txn)
	if err != nil {
		// No charge exists yet for this reference: the customer never paid.
		if status == http.StatusNotFound || isNoTransaction(err) {
			return &VerifyResult{Status: StatusPending, Reference: req.Reference, Message: "no payment recorded"}, nil
		}
		return nil, err
	}

	return &VerifyResult{
		Status:      normaliseStatus(txn.Status),
		GatewayTxID: strconv.FormatInt(txn.ID, 10),
		Reference:   txn.TxRef,
		PaidAmount:  toMinor(txn.Amount),
		Currency:    strings.ToUpper(txn.Currency),
		Method:      txn.PaymentType,
		Message:     txn.Processor,
	}, nil
}

func (f *Flutterwave) ResolveAccount(ctx context.Context, account BankAccount) (*AccountInfo, error) {
	var resolved flwResolvedAccount
	_, err := f.do(ctx, http.MethodPost, "/accounts/resolve", flwResolveRequest{
		AccountNumber: account.AccountNumber,
		AccountBank:   account.BankCode,
	}, &resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountNotFound, err)
	}
	if resolved.AccountName == "" {
		return nil, ErrAccountNotFound
	}
	return &AccountInfo{AccountNumber: resolved.AccountNumber, AccountName: resolved.AccountName}, nil
}

func (f *Flutterwave) InitiateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	var transfer flwTransfer
	_, err := f.do(ctx, http.MethodPost, "/transfers", flwTransferRequest{
		AccountBank:   req.Account.BankCode,
		AccountNumber: req.Account.AccountNumber,
		Amount:        toMajor(req.Amount),
		Narration:     req.Narration,
		Currency:      req.Currency,
		Reference:     req.Reference,
		CallbackURL:   req.CallbackURL,
		DebitCurrency: req.Currency,
	}, &transfer)
	if err != nil {
		return nil, err
	}

	return &TransferResult{
		Status:     normaliseStatus(transfer.Status),
		TransferID: strconv.FormatInt(transfer.ID, 10),
		Fee:        toMinor(transfer.Fee),
		Message:    transfer.CompleteMessage,
	}, nil
}

func (f *Flutterwave) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	return VerifyHMAC(f.webhookHash, rawBody, signature)
}

func (f *Flutterwave) ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	var hook flwWebhook
	if err := json.Unmarshal(rawBody, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var data flwWebhookData
	if len(hook.Data) > 0 {
		if err := json.Unmarshal(hook.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
	}

	event := &WebhookEvent{Type: hook.Event, Status: normaliseStatus(data.Status), Reason: data.CompleteMessage}
	if data.ID != 0 {
		event.GatewayID = strconv.FormatInt(data.ID, 10)
	}

	switch {
	case strings.HasPrefix(hook.Event, "charge."):
		event.Kind = EventPayment
		event.Reference = data.TxRef
	case strings.HasPrefix(hook.Event, "transfer."):
		event.Kind = EventTransfer
		event.Reference = data.Reference
	default:
		event.Kind = EventOther
	}

	if event.Kind != EventOther && event.Reference == "" && event.GatewayID == "" {
		return nil, ErrMalformedEvent
	}
	return event, nil
}

// do sends a JSON request and unwraps the {status, message, data} envelope
// into out. The HTTP status code is returned alongside any error.
func (f *Flutterwave) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	if f.secretKey == "" {
		return 0, ErrNotConfigured
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+f.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("flutterwave %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("flutterwave: read response: %w", err)
	}

	var envelope flwEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return resp.StatusCode, &APIError{Provider: flutterwaveName, StatusCode: resp.StatusCode, Message: truncate(string(respBody))}
	}

	if resp.StatusCode >= http.StatusBadRequest || envelope.Status != "success" {
		logrus.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Warn("Flutterwave request failed: " + envelope.Message)
		return resp.StatusCode, &APIError{Provider: flutterwaveName, StatusCode: resp.StatusCode, Message: envelope.Message}
	}

	if out != nil && len(envelope.Data) > 0 && string(envelope.Data) != "null" {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("flutterwave: decode data: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func normaliseStatus(status string) string {
	switch strings.ToLower(status) {
	case "successful", "success", "succeeded", "completed", "paid":
		return StatusSuccessful
	case "failed", "cancelled", "error", "reversed":
		return StatusFailed
	default:
		return StatusPending
	}
}

func isNoTransaction(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Message), "no transaction")
}

// toMajor renders minor units as a two-decimal major amount, e.g. 500050 -> 5000.50.
func toMajor(minor int64) json.Number {
	return json.Number(decimal.New(minor, -2).StringFixed(2))
}

func toMinor(major float64) int64 {
	return decimal.NewFromFloat(major).Shift(2).Round(0).IntPart()
}

func truncate(s string) string {
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
