// internal/handlers/user.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/digistore-backend/internal/config"
	"github.com/javajoker/digistore-backend/internal/i18n"
	"github.com/javajoker/digistore-backend/internal/services"
	"github.com/javajoker/digistore-backend/internal/utils"
)

type UserHandler struct {
	userService *services.UserService
	payment     config.PaymentConfig
}

func NewUserHandler(userService *services.UserService, payment config.PaymentConfig) *UserHandler {
	return &UserHandler{
		userService: userService,
		payment:     payment,
	}
}

// PUT /users/profile
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.UpdateUserProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), userID, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, user)
}

// GET /earnings
func (h *UserHandler) GetEarnings(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}

	summary, err := h.userService.GetEarnings(c.Request.Context(), sellerID, h.payment.Currency, h.payment.MinimumWithdrawal)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, summary)
}

// PUT /users/bank-details
func (h *UserHandler) UpdateBankDetails(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.BankDetailsRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.UpdateBankDetails(c.Request.Context(), sellerID, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyUserBankSaved),
		"bank":    user.Bank,
	})
}
