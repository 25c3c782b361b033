package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/javajoker/digistore-backend/internal/config"
	"github.com/javajoker/digistore-backend/internal/gateway"
	"github.com/javajoker/digistore-backend/internal/lock"
	"github.com/javajoker/digistore-backend/internal/models"
	"github.com/javajoker/digistore-backend/internal/testutil"
)

const validSignature = "valid-signature"

// fakeGateway answers from in-memory state. Verify reports every payment as
// fully paid unless verifyResult or verifyErr is set.
type fakeGateway struct {
	mu sync.Mutex

	initErr      error
	verifyErr    error
	verifyResult *gateway.VerifyResult
	resolveErr   error
	transferErr  error
	transfer     *gateway.TransferResult

	amounts       map[string]int64
	initCalls     int
	verifyCalls   int
	transferCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{amounts: make(map[string]int64)}
}

func (g *fakeGateway) Name() string            { return "fake" }
func (g *fakeGateway) SignatureHeader() string { return "x-signature" }

func (g *fakeGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls++
	if g.initErr != nil {
		return nil, g.initErr
	}
	g.amounts[req.Reference] = req.Amount
	return &gateway.InitializeResult{Status: gateway.StatusPending, HostedURL: "https://pay.test/" + req.Reference}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, req gateway.VerifyRequest) (*gateway.VerifyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if g.verifyResult != nil {
		res := *g.verifyResult
		return &res, nil
	}
	return &gateway.VerifyResult{
		Status:      gateway.StatusSuccessful,
		GatewayTxID: "gw-" + req.Reference,
		Reference:   req.Reference,
		PaidAmount:  g.amounts[req.Reference],
		Currency:    "NGN",
		Method:      "card",
	}, nil
}

func (g *fakeGateway) ResolveAccount(ctx context.Context, account gateway.BankAccount) (*gateway.AccountInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resolveErr != nil {
		return nil, g.resolveErr
	}
	return &gateway.AccountInfo{AccountNumber: account.AccountNumber, AccountName: "Ada Seller"}, nil
}

func (g *fakeGateway) InitiateTransfer(ctx context.Context, req gateway.TransferRequest) (*gateway.TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transferCalls++
	if g.transferErr != nil {
		return nil, g.transferErr
	}
	if g.transfer != nil {
		res := *g.transfer
		return &res, nil
	}
	return &gateway.TransferResult{Status: gateway.StatusPending, TransferID: "tr-" + req.Reference, Fee: 5375}, nil
}

func (g *fakeGateway) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	return signature == validSignature
}

// ParseWebhook reads events shaped like WebhookEvent's JSON encoding.
func (g *fakeGateway) ParseWebhook(rawBody []byte) (*gateway.WebhookEvent, error) {
	var evt gateway.WebhookEvent
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return nil, gateway.ErrMalformedEvent
	}
	if evt.Kind == "" {
		return nil, gateway.ErrMalformedEvent
	}
	return &evt, nil
}

func (g *fakeGateway) calls() (verify, transfer int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyCalls, g.transferCalls
}

type sentNotification struct {
	UserID uuid.UUID
	Kind   models.NotificationType
	Title  string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Notify(ctx context.Context, userID uuid.UUID, kind models.NotificationType, title, message string, data map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Kind: kind, Title: title})
}

func (n *fakeNotifier) kinds() []models.NotificationType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.NotificationType, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

type fakeSigner struct {
	err error
}

func (f fakeSigner) PresignDownload(key string, ttl time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://files.test/" + key + "?sig=1", nil
}

func testPaymentConfig() config.PaymentConfig {
	return config.PaymentConfig{
		Provider:           "fake",
		Currency:           "NGN",
		CommissionRate:     decimal.NewFromFloat(0.05),
		MinimumWithdrawal:  100000,
		RedirectURL:        "https://shop.test/callback",
		DownloadLimit:      3,
		DownloadExpiryDays: 30,
		PaymentExpiry:      24 * time.Hour,
	}
}

type fixture struct {
	db          *gorm.DB
	cfg         config.PaymentConfig
	gw          *fakeGateway
	notifier    *fakeNotifier
	locker      lock.Locker
	settlement  *SettlementService
	withdrawals *WithdrawalService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		db:       testutil.NewDB(t),
		cfg:      testPaymentConfig(),
		gw:       newFakeGateway(),
		notifier: &fakeNotifier{},
		locker:   lock.NewLocalLocker(),
	}
	f.withdrawals = NewWithdrawalService(f.db, f.cfg, f.gw, f.locker, f.notifier)
	f.settlement = NewSettlementService(f.db, f.cfg, f.gw, f.locker, f.notifier, fakeSigner{}, f.withdrawals)
	return f
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func webhookBody(t *testing.T, evt gateway.WebhookEvent) []byte {
	t.Helper()
	body, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal webhook: %v", err)
	}
	return body
}

var errGatewayDown = errors.New("connection reset by peer")
