package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/digistore-backend/internal/config"
	"github.com/javajoker/digistore-backend/internal/models"
	"github.com/javajoker/digistore-backend/internal/services"
)

type fakeSettler struct {
	mu       sync.Mutex
	pending  []models.Transaction
	outcomes map[string]error
	listErr  error
	cutoff   time.Time
	limit    int
	expired  []string
	seen     []string
}

func (f *fakeSettler) ListPendingOlderThan(_ context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff, f.limit = cutoff, limit
	return f.pending, f.listErr
}

func (f *fakeSettler) ConfirmPurchase(_ context.Context, reference string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, reference)
	if err := f.outcomes[reference]; err != nil {
		return &models.Transaction{PaymentReference: reference, Status: models.TransactionStatusPending}, err
	}
	return &models.Transaction{PaymentReference: reference, Status: models.TransactionStatusSuccessful}, nil
}

func (f *fakeSettler) ExpireTransaction(_ context.Context, reference, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, reference)
	return nil
}

func pendingTxn(reference string, createdAt time.Time) models.Transaction {
	txn := models.Transaction{PaymentReference: reference, Status: models.TransactionStatusPending}
	txn.ID = uuid.New()
	txn.CreatedAt = createdAt
	return txn
}

func TestTickOutcomes(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	settler := &fakeSettler{
		pending: []models.Transaction{
			pendingTxn("DGS-paid", now.Add(-time.Hour)),
			pendingTxn("DGS-declined", now.Add(-time.Hour)),
			pendingTxn("DGS-waiting", now.Add(-time.Hour)),
			pendingTxn("DGS-abandoned", now.Add(-48*time.Hour)),
			pendingTxn("DGS-busy", now.Add(-time.Hour)),
			pendingTxn("DGS-down", now.Add(-time.Hour)),
		},
		outcomes: map[string]error{
			"DGS-declined":  fmt.Errorf("%w: transaction is failed", services.ErrPaymentFailed),
			"DGS-waiting":   services.ErrPaymentPending,
			"DGS-abandoned": services.ErrPaymentPending,
			"DGS-busy":      services.ErrSettlementInProgress,
			"DGS-down":      fmt.Errorf("%w: timeout", services.ErrPaymentVerifyFailed),
		},
	}

	r := NewReconciler(settler, config.ReconcilerConfig{StaleAfter: 15 * time.Minute, BatchSize: 50}, 24*time.Hour)
	r.now = func() time.Time { return now }

	settled := r.Tick(context.Background())

	assert.Equal(t, 3, settled)
	assert.Equal(t, now.Add(-15*time.Minute), settler.cutoff)
	assert.Equal(t, 50, settler.limit)
	assert.Len(t, settler.seen, 6)
	assert.Equal(t, []string{"DGS-abandoned"}, settler.expired)
}

func TestTickListError(t *testing.T) {
	settler := &fakeSettler{listErr: errors.New("db down")}
	r := NewReconciler(settler, config.ReconcilerConfig{}, time.Hour)

	assert.Equal(t, 0, r.Tick(context.Background()))
	assert.Empty(t, settler.seen)
}

func TestNewReconcilerDefaults(t *testing.T) {
	r := NewReconciler(&fakeSettler{}, config.ReconcilerConfig{}, 0)
	assert.Equal(t, time.Minute, r.interval)
	assert.Equal(t, 10*time.Minute, r.staleAfter)
	assert.Equal(t, 100, r.batchSize)
}

func TestStartStopsOnCancel(t *testing.T) {
	settler := &fakeSettler{pending: []models.Transaction{pendingTxn("DGS-1", time.Now().Add(-time.Hour))}}
	r := NewReconciler(settler, config.ReconcilerConfig{Interval: 10 * time.Millisecond}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		settler.mu.Lock()
		defer settler.mu.Unlock()
		return len(settler.seen) > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
