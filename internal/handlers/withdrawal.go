// internal/handlers/withdrawal.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/digistore-backend/internal/models"
	"github.com/javajoker/digistore-backend/internal/services"
	"github.com/javajoker/digistore-backend/internal/utils"
)

type WithdrawalHandler struct {
	withdrawals *services.WithdrawalService
}

func NewWithdrawalHandler(withdrawals *services.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

// POST /withdrawals
func (h *WithdrawalHandler) RequestWithdrawal(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.WithdrawalRequest
	if !bindJSON(c, &req) {
		return
	}

	withdrawal, err := h.withdrawals.RequestWithdrawal(c.Request.Context(), sellerID, req.Amount)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, withdrawal)
}

// GET /withdrawals
func (h *WithdrawalHandler) ListWithdrawals(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	withdrawals, total, err := h.withdrawals.ListWithdrawals(c.Request.Context(), sellerID, params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(withdrawals, total, params))
}

// GET /admin/withdrawals
func (h *WithdrawalHandler) ListAllWithdrawals(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	filter := services.WithdrawalFilter{
		Status: models.WithdrawalStatus(c.Query("status")),
		UserID: queryUUID(c, "user_id"),
	}

	withdrawals, total, err := h.withdrawals.ListAllWithdrawals(c.Request.Context(), filter, params)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(withdrawals, total, params))
}

// POST /admin/withdrawals/:id/process
func (h *WithdrawalHandler) ProcessWithdrawal(c *gin.Context) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	withdrawal, err := h.withdrawals.ProcessWithdrawal(c.Request.Context(), adminID, id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, withdrawal)
}

// PUT /admin/withdrawals/:id/cancel
func (h *WithdrawalHandler) CancelWithdrawal(c *gin.Context) {
	adminID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.CancelWithdrawalRequest
	if !bindJSON(c, &req) {
		return
	}

	withdrawal, err := h.withdrawals.CancelWithdrawal(c.Request.Context(), adminID, id, req.Reason)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, withdrawal)
}
