// Package worker holds background jobs started by the server.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/digistore-backend/internal/config"
	"github.com/javajoker/digistore-backend/internal/metrics"
	"github.com/javajoker/digistore-backend/internal/models"
	"github.com/javajoker/digistore-backend/internal/services"
)

// Settler is the part of the settlement service the reconciler drives.
type Settler interface {
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error)
	ConfirmPurchase(ctx context.Context, reference string) (*models.Transaction, error)
	ExpireTransaction(ctx context.Context, reference, reason string) error
}

// Reconciler periodically re-verifies stale pending payments so that a lost
// webhook or an abandoned redirect still ends in a settled transaction.
// Checkouts older than the payment expiry that the gateway still reports as
// unpaid are cancelled.
type Reconciler struct {
	settler    Settler
	interval   time.Duration
	staleAfter time.Duration
	expireAt   time.Duration
	batchSize  int
	now        func() time.Time
}

func NewReconciler(settler Settler, cfg config.ReconcilerConfig, paymentExpiry time.Duration) *Reconciler {
	r := &Reconciler{
		settler:    settler,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		expireAt:   paymentExpiry,
		batchSize:  cfg.BatchSize,
		now:        time.Now,
	}
	if r.interval <= 0 {
		r.interval = time.Minute
	}
	if r.staleAfter <= 0 {
		r.staleAfter = 10 * time.Minute
	}
	if r.batchSize <= 0 {
		r.batchSize = 100
	}
	return r
}

// Start blocks until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	logrus.WithFields(logrus.Fields{
		"interval":    r.interval,
		"stale_after": r.staleAfter,
	}).Info("Payment reconciler started")

	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Payment reconciler stopped")
			return
		case <-t.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs a single reconciliation pass and returns how many transactions
// reached a final state.
func (r *Reconciler) Tick(ctx context.Context) int {
	now := r.now()
	pending, err := r.settler.ListPendingOlderThan(ctx, now.Add(-r.staleAfter), r.batchSize)
	if err != nil {
		logrus.WithError(err).Error("Reconciler failed to list pending transactions")
		return 0
	}

	settled := 0
	for _, txn := range pending {
		if ctx.Err() != nil {
			break
		}
		if r.reconcile(ctx, txn, now) {
			settled++
		}
	}

	if len(pending) > 0 {
		logrus.WithFields(logrus.Fields{
			"checked": len(pending),
			"settled": settled,
		}).Info("Reconciliation pass finished")
	}
	return settled
}

func (r *Reconciler) reconcile(ctx context.Context, txn models.Transaction, now time.Time) bool {
	logger := logrus.WithField("reference", txn.PaymentReference)

	result, err := r.settler.ConfirmPurchase(ctx, txn.PaymentReference)
	switch {
	case err == nil:
		metrics.IncReconciled("settled")
		logger.WithField("status", result.Status).Info("Reconciled pending transaction")
		return true

	case errors.Is(err, services.ErrPaymentFailed):
		metrics.IncReconciled("failed")
		logger.Info("Reconciled transaction as failed")
		return true

	case errors.Is(err, services.ErrPaymentPending):
		if r.expireAt > 0 && now.Sub(txn.CreatedAt) > r.expireAt {
			if err := r.settler.ExpireTransaction(ctx, txn.PaymentReference, "checkout expired without payment"); err != nil {
				logger.WithError(err).Warn("Failed to expire stale transaction")
				return false
			}
			metrics.IncReconciled("expired")
			logger.Info("Expired abandoned checkout")
			return true
		}
		metrics.IncReconciled("pending")
		return false

	case errors.Is(err, services.ErrSettlementInProgress):
		metrics.IncReconciled("skipped")
		return false

	default:
		metrics.IncReconciled("error")
		logger.WithError(err).Warn("Reconciler could not confirm transaction")
		return false
	}
}
