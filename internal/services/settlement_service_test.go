package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/javajoker/digistore-backend/internal/gateway"
	"github.com/javajoker/digistore-backend/internal/models"
	"github.com/javajoker/digistore-backend/internal/testutil"
	"github.com/javajoker/digistore-backend/internal/utils"
)

type SettlementTestSuite struct {
	suite.Suite
	f      *fixture
	ctx    context.Context
	seller *models.User
	buyer  *models.User
	file   *models.File
}

func (s *SettlementTestSuite) SetupTest() {
	s.f = newFixture(s.T())
	s.ctx = context.Background()
	s.seller = testutil.CreateSeller(s.T(), s.f.db)
	s.buyer = testutil.CreateUser(s.T(), s.f.db, models.UserTypeBuyer)
	s.file = testutil.CreateFile(s.T(), s.f.db, s.seller.ID, 500000) // NGN 5,000.00
}

func (s *SettlementTestSuite) initialize() *PurchaseInit {
	init, err := s.f.settlement.InitializePurchase(s.ctx, s.buyer.ID, s.file.ID)
	s.Require().NoError(err)
	return init
}

func (s *SettlementTestSuite) TestInitializeSplitsPrice() {
	init := s.initialize()

	s.Equal("https://pay.test/"+init.Reference, init.PaymentURL)
	s.Equal(models.TransactionStatusPending, init.Transaction.Status)
	s.Equal(int64(500000), init.Transaction.Amount)
	s.Equal(int64(25000), init.Transaction.PlatformCommission)
	s.Equal(int64(475000), init.Transaction.SellerEarning)
	s.Equal(3, init.Transaction.DownloadLimit)
	s.Equal("fake", init.Transaction.Provider)
	s.Equal(models.Earnings{}, testutil.Earnings(s.T(), s.f.db, s.seller.ID))
}

// A second confirm of a paid purchase credits nothing more.
func (s *SettlementTestSuite) TestConfirmCreditsSellerOnce() {
	init := s.initialize()

	txn, err := s.f.settlement.ConfirmPurchase(s.ctx, init.Reference)
	s.Require().NoError(err)
	s.Equal(models.TransactionStatusSuccessful, txn.Status)
	s.NotNil(txn.PaidAt)
	s.NotNil(txn.DownloadExpiry)
	s.Equal("gw-"+init.Reference, txn.GatewayTxID)
	s.Equal("card", txn.PaymentMethod)

	earnings := testutil.Earnings(s.T(), s.f.db, s.seller.ID)
	s.Equal(models.Earnings{Total: 475000, Available: 475000}, earnings)
	s.True(earnings.Consistent())

	var commissions []models.Commission
	s.Require().NoError(s.f.db.Find(&commissions).Error)
	s.Require().Len(commissions, 1)
	s.Equal(models.CommissionStatusConfirmed, commissions[0].Status)
	s.Equal(int64(25000), commissions[0].CommissionAmount)
	s.Equal(txn.ID, commissions[0].TransactionID)

	var file models.File
	s.Require().NoError(s.f.db.First(&file, "id = ?", s.file.ID).Error)
	s.Equal(int64(1), file.SalesCount)

	s.ElementsMatch([]models.NotificationType{models.NotificationPurchaseCompleted, models.NotificationSaleCompleted}, s.f.notifier.kinds())

	// Confirming again is a no-op that reports the same outcome.
	again, err := s.f.settlement.ConfirmPurchase(s.ctx, init.Reference)
	s.Require().NoError(err)
	s.Equal(txn.ID, again.ID)
	s.Equal(earnings, testutil.Earnings(s.T(), s.f.db, s.seller.ID))
	s.Equal(int64(1), s.f.count(s.T(), &models.Commission{}))
	verifyCalls, _ := s.f.gw.calls()
	s.Equal(1, verifyCalls)
}

// Once bought, the same file cannot be checked out again.
func (s *SettlementTestSuite) TestRejectsRepeatPurchase() {
	init := s.initialize()
	_, err := s.f.settlement.ConfirmPurchase(s.ctx, init.Reference)
	s.Require().NoError(err)

	_, err = s.f.settlement.InitializePurchase(s.ctx, s.buyer.ID, s.file.ID)
	s.ErrorIs(err, ErrAlreadyPurchased)
	s.Equal(int64(1), s.f.count(s.T(), &models.Transaction{}))
}

// A forged webhook leaves the transaction and ledger untouched.
func (s *SettlementTestSuite) TestWebhookWithInvalidSignatureChangesNothing() {
	init := s.initialize()
	body := webhookBody(s.T(), gateway.WebhookEvent{Kind: gateway.EventPayment, Reference: init.Reference, Status: gateway.StatusSuccessful})

	err := s.f.settlement.HandleWebhook(s.ctx, body, "forged")
	s.ErrorIs(err, ErrInvalidSignature)

	var txn models.Transaction
	s.Require().NoError(s.f.db.First(&txn, "payment_reference = ?", init.Reference).Error)
	s.Equal(models.TransactionStatusPending, txn.Status)
	s.Equal(int64(0), s.f.count(s.T(), &models.Commission{}))
	s.Equal(models.Earnings{}, testutil.Earnings(s.T(), s.f.db, s.seller.ID))
	verifyCalls, _ := s.f.gw.calls()
	s.Zero(verifyCalls)
}

// A checkout the gateway refuses leaves no row behind.
func (s *SettlementTestSuite) TestInitializeFailureLeavesNoTransaction() {
	s.f.gw.initErr = errGatewayDown

	_, err := s.f.settlement.InitializePurchase(s.ctx, s.buyer.ID, s.file.ID)
	s.ErrorIs(err, ErrPaymentInitFailed)

	var n int64
	s.Require().NoError(s.f.db.Unscoped().Model(&models.Transaction{}).Count(&n).Error)
	s.Zero(n)
}

func (s *SettlementTestSuite) TestInitializeValidation() {
	_, err := s.f.settlement.InitializePurchase(s.ctx, s.seller.ID, s.file.ID)
	s.ErrorIs(err, ErrSelfPurchase)

	hidden := testutil.CreateFile(s.T(), s.f.db, s.seller.ID, 1000)
	s.Require().NoError(s.f.db.Model(hidden).Update("is_approved", false).Error)
	_, err = s.f.settlement.InitializePurchase(s.ctx, s.buyer.ID, hidden.ID)
	s.ErrorIs(err, ErrFileNotPurchasable)

	_, err = s.f.settlement.InitializePurchase(s.ctx, s.buyer.ID, s.seller.ID)
	s.ErrorIs(err, ErrFileNotFound)
}

func (s *SettlementTestSuite) TestWebhookSettlesPayment() {
	init := s.initialize()
	body := webhookBody(s.T(), gateway.WebhookEvent{
		Kind:      gateway.EventPayment,
		Type:      "charge.completed",
		Reference: init.Reference,
		GatewayID: "9001",
		Status:    gateway.StatusSuccessful,
	})

	s.Require().NoError(s.f.settlement.HandleWebhook(s.ctx, body, validSignature))
	s.Require().NoError(s.f.settlement.HandleWebhook(s.ctx, body, validSignature))

	var txn models.Transaction
	s.Require().NoError(s.f.db.First(&txn, "payment_reference = ?", init.Reference).Error)
	s.Equal(models.TransactionStatusSuccessful, txn.Status)
	s.Equal(int64(475000), testutil.Earnings(s.T(), s.f.db, s.seller.ID).Available)
	s.Equal(int64(1), s.f.count(s.T(), &models.Commission{}))
}

func (s *SettlementTestSuite) TestWebhookForUnknownReferenceIsAcknowledged() {
	body := webhookBody(s.T(), gateway.WebhookEvent{Kind: gateway.EventPayment, Reference: "DGS-unknown", Status: gateway.StatusSuccessful})
	s.NoError(s.f.settlement.HandleWebhook(s.ctx, body, validSignature))
}

func (s *SettlementTestSuite) TestMalformedWebhook() {
	err := s.f.settlement.HandleWebhook(s.ctx, []byte(`{"Kind":""}`), validSignature)
	s.ErrorIs(err, ErrInvalidWebhook)
}

func (s *SettlementTestSuite) TestConcurrentConfirmsSettleOnce() {
	init := s.initialize()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.f.settlement.ConfirmPurchase(s.ctx, init.Reference)
			if err != nil {
				s.ErrorIs(err, ErrSettlementInProgress)
			}
		}()
	}
	wg.Wait()

	s.Equal(int64(1), s.f.count(s.T(), &models.Commission{}))
	s.Equal(models.Earnings{Total: 475000, Available: 475000}, testutil.Earnings(s.T(), s.f.db, s.seller.ID))
}

func (s *SettlementTestSuite) TestVerifyErrorLeavesTransactionPending() {
	init := s.initialize()
	s.f.gw.verifyErr = errGatewayDown

	_, err := s.f.settlement.ConfirmPurchase(s.ctx, init.Reference)
	s.ErrorIs(err, ErrPaymentVerifyFailed)

	var txn models.Transaction
	s.Require().NoError(s.f.db.First(&txn, "payment_reference = ?", init.Reference).Error)
	s.Equal(models.TransactionStatusPending, txn.Status)

	// A retry after the provider recovers settles normally.
	s.f.gw.verifyErr = nil
	txn2, err := s.f.settlement.ConfirmPurchase(s.ctx, init.Reference)
	s.Require().NoError(err)
	s.Equal(models.TransactionStatusSuccessful, txn2.Status)
}

func (s *SettlementTestSuite) TestPendingPaymentStaysPending() {
	init := s.initialize()
	s.f.gw.verifyResult = &gateway.VerifyResult{Status: gateway.StatusPending, Reference: init.Reference}

	txn, err := s.f.settlement.ConfirmPurchase(s.ctx, init.Reference)
	s.ErrorIs(err, ErrPaymentPending)
	s.Equal(models.TransactionStatusPending, txn.Status)
}

func (s *SettlementTestSuite) TestFailedPayment() {
	init := s.initialize()
	s.f.gw.verifyResult = &gateway.VerifyResult{Status: gateway.StatusFailed, Reference: init.Reference, Message: "Insufficient funds"}

	txn, err := s.f.settlement.ConfirmPurchase(s.ctx, init.Reference)
	s.ErrorIs(err, ErrPaymentFailed)
	s.Equal(models.TransactionStatusFailed, txn.Status)
	s.Equal("Insufficient funds", txn.FailureReason)
	s.Equal(models.Earnings{}, testutil.Earnings(s.T(), s.f.db, s.seller.ID))

	// A later success report cannot revive a failed transaction.
	s.f.gw.verifyResult = nil
	_, err = s.f.settlement.ConfirmPurchase(s.ctx, init.Reference)
	s.ErrorIs(err, ErrPaymentFailed)
	s.Equal(int64(0), s.f.count(s.T(), &models.Commission{}))
}

func (s *SettlementTestSuite) TestUnderpaymentFails() {
	init := s.initialize()
	s.f.gw.verifyResult = &gateway.VerifyResult{
		Status:     gateway.StatusSuccessful,
		Reference:  init.Reference,
		PaidAmount: 100000,
		Currency:   "NGN",
	}

	txn, err := s.f.settlement.ConfirmPurchase(s.ctx, init.Reference)
	s.ErrorIs(err, ErrPaymentFailed)
	s.Equal(models.TransactionStatusFailed, txn.Status)
	s.Contains(txn.FailureReason, "underpaid")
	s.Equal(models.Earnings{}, testutil.Earnings(s.T(), s.f.db, s.seller.ID))
}

func (s *SettlementTestSuite) TestCurrencyMismatchFails() {
	init := s.initialize()
	s.f.gw.verifyResult = &gateway.VerifyResult{
		Status:     gateway.StatusSuccessful,
		Reference:  init.Reference,
		PaidAmount: 500000,
		Currency:   "USD",
	}

	_, err := s.f.settlement.ConfirmPurchase(s.ctx, init.Reference)
	s.ErrorIs(err, ErrPaymentFailed)
}

func (s *SettlementTestSuite) TestReferenceMismatchIsNotSettled() {
	init := s.initialize()
	s.f.gw.verifyResult = &gateway.VerifyResult{
		Status:     gateway.StatusSuccessful,
		Reference:  "DGS-someone-else",
		PaidAmount: 500000,
		Currency:   "NGN",
	}

	_, err := s.f.settlement.ConfirmPurchase(s.ctx, init.Reference)
	s.ErrorIs(err, ErrPaymentVerifyFailed)
	s.Equal(int64(0), s.f.count(s.T(), &models.Commission{}))
}

func (s *SettlementTestSuite) TestConfirmUnknownReference() {
	_, err := s.f.settlement.ConfirmPurchase(s.ctx, "DGS-missing")
	s.ErrorIs(err, ErrTransactionNotFound)
}

func (s *SettlementTestSuite) TestVerifyPurchaseChecksOwnerFirst() {
	init := s.initialize()
	s.f.gw.verifyErr = errGatewayDown

	stranger := testutil.CreateUser(s.T(), s.f.db, models.UserTypeBuyer)
	_, err := s.f.settlement.VerifyPurchase(s.ctx, stranger.ID, init.Reference)
	s.ErrorIs(err, ErrTransactionNotFound)
	s.Equal(0, s.f.gw.verifyCalls)

	_, err = s.f.settlement.VerifyPurchase(s.ctx, s.buyer.ID, init.Reference)
	s.ErrorIs(err, ErrPaymentVerifyFailed)
	s.Equal(1, s.f.gw.verifyCalls)

	s.f.gw.verifyErr = nil
	txn, err := s.f.settlement.VerifyPurchase(s.ctx, s.buyer.ID, init.Reference)
	s.Require().NoError(err)
	s.Equal(models.TransactionStatusSuccessful, txn.Status)
}

func (s *SettlementTestSuite) TestDownloadLimit() {
	init := s.initialize()
	_, err := s.f.settlement.ConfirmPurchase(s.ctx, init.Reference)
	s.Require().NoError(err)

	for i := 2; i >= 0; i-- {
		link, err := s.f.settlement.GetDownloadLink(s.ctx, s.buyer.ID, init.Transaction.ID)
		s.Require().NoError(err)
		s.Equal("https://files.test/files/go-patterns.pdf?sig=1", link.URL)
		s.Equal(i, link.RemainingDownloads)
	}

	_, err = s.f.settlement.GetDownloadLink(s.ctx, s.buyer.ID, init.Transaction.ID)
	s.ErrorIs(err, ErrDownloadLimitReached)

	// Another user cannot use the buyer's purchase.
	_, err = s.f.settlement.GetDownloadLink(s.ctx, s.seller.ID, init.Transaction.ID)
	s.ErrorIs(err, ErrTransactionNotFound)
}

func (s *SettlementTestSuite) TestDownloadRules() {
	init := s.initialize()

	_, err := s.f.settlement.GetDownloadLink(s.ctx, s.buyer.ID, init.Transaction.ID)
	s.ErrorIs(err, ErrDownloadNotAllowed)

	_, err = s.f.settlement.ConfirmPurchase(s.ctx, init.Reference)
	s.Require().NoError(err)

	s.f.settlement.now = func() time.Time { return time.Now().AddDate(0, 0, 31) }
	_, err = s.f.settlement.GetDownloadLink(s.ctx, s.buyer.ID, init.Transaction.ID)
	s.ErrorIs(err, ErrDownloadExpired)
}

func (s *SettlementTestSuite) TestExpireTransaction() {
	init := s.initialize()

	s.Require().NoError(s.f.settlement.ExpireTransaction(s.ctx, init.Reference, "checkout abandoned"))

	var txn models.Transaction
	s.Require().NoError(s.f.db.First(&txn, "payment_reference = ?", init.Reference).Error)
	s.Equal(models.TransactionStatusCancelled, txn.Status)

	// Expiring a settled purchase does nothing.
	other := testutil.CreateUser(s.T(), s.f.db, models.UserTypeBuyer)
	paid, err := s.f.settlement.InitializePurchase(s.ctx, other.ID, s.file.ID)
	s.Require().NoError(err)
	_, err = s.f.settlement.ConfirmPurchase(s.ctx, paid.Reference)
	s.Require().NoError(err)
	s.Require().NoError(s.f.settlement.ExpireTransaction(s.ctx, paid.Reference, "late"))
	var settled models.Transaction
	s.Require().NoError(s.f.db.First(&settled, "payment_reference = ?", paid.Reference).Error)
	s.Equal(models.TransactionStatusSuccessful, settled.Status)
}

func (s *SettlementTestSuite) TestListPendingOlderThan() {
	init := s.initialize()

	pending, err := s.f.settlement.ListPendingOlderThan(s.ctx, time.Now().Add(time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(init.Reference, pending[0].PaymentReference)

	pending, err = s.f.settlement.ListPendingOlderThan(s.ctx, time.Now().Add(-time.Hour), 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *SettlementTestSuite) TestListPurchasesAndSales() {
	init := s.initialize()
	_, err := s.f.settlement.ConfirmPurchase(s.ctx, init.Reference)
	s.Require().NoError(err)

	second := testutil.CreateFile(s.T(), s.f.db, s.seller.ID, 200000)
	_, err = s.f.settlement.InitializePurchase(s.ctx, s.buyer.ID, second.ID)
	s.Require().NoError(err)

	params := utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}

	purchases, total, err := s.f.settlement.ListPurchases(s.ctx, s.buyer.ID, params)
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Len(purchases, 2)
	s.NotNil(purchases[0].File)

	sales, total, err := s.f.settlement.ListSales(s.ctx, s.seller.ID, params)
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Equal(init.Reference, sales[0].PaymentReference)

	txn, err := s.f.settlement.GetTransaction(s.ctx, s.seller.ID, init.Transaction.ID)
	s.Require().NoError(err)
	s.Equal(init.Reference, txn.PaymentReference)

	stranger := testutil.CreateUser(s.T(), s.f.db, models.UserTypeBuyer)
	_, err = s.f.settlement.GetTransaction(s.ctx, stranger.ID, init.Transaction.ID)
	s.ErrorIs(err, ErrTransactionNotFound)
}

func TestSettlementSuite(t *testing.T) {
	suite.Run(t, new(SettlementTestSuite))
}
