// internal/handlers/payment.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/digistore-backend/internal/i18n"
	"github.com/javajoker/digistore-backend/internal/services"
	"github.com/javajoker/digistore-backend/internal/utils"
)

// Webhook bodies above this size are rejected.
const maxWebhookBody = 1 << 20

type PaymentHandler struct {
	settlement      *services.SettlementService
	signatureHeader string
}

func NewPaymentHandler(settlement *services.SettlementService, signatureHeader string) *PaymentHandler {
	return &PaymentHandler{
		settlement:      settlement,
		signatureHeader: signatureHeader,
	}
}

// POST /payments/initialize
func (h *PaymentHandler) InitializePurchase(c *gin.Context) {
	buyerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.InitializePurchaseRequest
	if !bindJSON(c, &req) {
		return
	}
	fileID, err := uuid.Parse(req.FileID)
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, "file_id"), nil)
		return
	}

	checkout, err := h.settlement.InitializePurchase(c.Request.Context(), buyerID, fileID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, checkout)
}

// POST /payments/verify
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	buyerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.VerifyPaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	txn, err := h.settlement.VerifyPurchase(c.Request.Context(), buyerID, req.Reference)
	switch {
	case err == nil:
		utils.SuccessResponse(c, txn)
	case errors.Is(err, services.ErrPaymentPending):
		// The customer may return before the provider has an outcome.
		c.JSON(http.StatusAccepted, utils.APIResponse{Success: true, Data: txn})
	default:
		utils.HandleError(c, err)
	}
}

// POST /payments/webhook and /withdrawals/webhook
func (h *PaymentHandler) Webhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		utils.HandleError(c, services.ErrInvalidWebhook)
		return
	}

	if err := h.settlement.HandleWebhook(c.Request.Context(), body, c.GetHeader(h.signatureHeader)); err != nil {
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Debug("Webhook not acknowledged")
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"received": true})
}

// GET /payments/history
func (h *PaymentHandler) GetPurchaseHistory(c *gin.Context) {
	buyerID, ok := currentUser(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	transactions, total, err := h.settlement.ListPurchases(c.Request.Context(), buyerID, params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(transactions, total, params))
}

// GET /payments/sales
func (h *PaymentHandler) GetSales(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	transactions, total, err := h.settlement.ListSales(c.Request.Context(), sellerID, params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(transactions, total, params))
}

// GET /payments/:id
func (h *PaymentHandler) GetTransaction(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	txn, err := h.settlement.GetTransaction(c.Request.Context(), userID, id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, txn)
}

// GET /purchases/:id/download
func (h *PaymentHandler) Download(c *gin.Context) {
	buyerID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	link, err := h.settlement.GetDownloadLink(c.Request.Context(), buyerID, id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	if c.Query("redirect") == "true" {
		c.Redirect(http.StatusFound, link.URL)
		return
	}
	utils.SuccessResponse(c, link)
}
