// internal/services/admin_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/digistore-backend/internal/models"
	"github.com/javajoker/digistore-backend/internal/utils"
)

type AdminService struct {
	db *gorm.DB
}

// AdminDashboardStats money fields are in minor units.
type AdminDashboardStats struct {
	TotalUsers            int64 `json:"total_users"`
	TotalSellers          int64 `json:"total_sellers"`
	NewUsersThisMonth     int64 `json:"new_users_this_month"`
	TotalRevenue          int64 `json:"total_revenue"`
	MonthlyRevenue        int64 `json:"monthly_revenue"`
	TotalCommission       int64 `json:"total_commission"`
	MonthlyCommission     int64 `json:"monthly_commission"`
	SuccessfulSales       int64 `json:"successful_sales"`
	PendingTransactions   int64 `json:"pending_transactions"`
	PendingWithdrawals    int64 `json:"pending_withdrawals"`
	PendingWithdrawalSum  int64 `json:"pending_withdrawal_amount"`
	FilesAwaitingApproval int64 `json:"files_awaiting_approval"`
}

type AdminUserFilter struct {
	utils.PaginationParams
	UserType *models.UserType   `json:"user_type,omitempty"`
	Status   *models.UserStatus `json:"status,omitempty"`
}

type AdminTransactionFilter struct {
	utils.PaginationParams
	Status        *models.TransactionStatus `json:"status,omitempty"`
	BuyerID       *uuid.UUID                `json:"buyer_id,omitempty"`
	SellerID      *uuid.UUID                `json:"seller_id,omitempty"`
	Reference     string                    `json:"reference,omitempty"`
	CreatedAfter  *time.Time                `json:"created_after,omitempty"`
	CreatedBefore *time.Time                `json:"created_before,omitempty"`
}

type UpdateUserStatusRequest struct {
	Status models.UserStatus `json:"status" validate:"required,oneof=active suspended banned"`
	Reason string            `json:"reason" validate:"omitempty,max=500"`
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{db: db}
}

// Dashboard Statistics
func (s *AdminService) GetDashboardStats(ctx context.Context) (*AdminDashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &AdminDashboardStats{}
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	// User statistics
	db.Model(&models.User{}).Count(&stats.TotalUsers)
	db.Model(&models.User{}).Where("user_type = ?", models.UserTypeSeller).Count(&stats.TotalSellers)
	db.Model(&models.User{}).Where("created_at >= ?", monthStart).Count(&stats.NewUsersThisMonth)

	// Revenue statistics
	successful := db.Model(&models.Transaction{}).Where("status = ?", models.TransactionStatusSuccessful)
	if err := successful.Session(&gorm.Session{}).Count(&stats.SuccessfulSales).Error; err != nil {
		return nil, fmt.Errorf("failed to count sales: %w", err)
	}
	successful.Session(&gorm.Session{}).Select("COALESCE(SUM(amount), 0)").Scan(&stats.TotalRevenue)
	successful.Session(&gorm.Session{}).Select("COALESCE(SUM(platform_commission), 0)").Scan(&stats.TotalCommission)

	monthly := successful.Session(&gorm.Session{}).Where("paid_at >= ?", monthStart)
	monthly.Session(&gorm.Session{}).Select("COALESCE(SUM(amount), 0)").Scan(&stats.MonthlyRevenue)
	monthly.Session(&gorm.Session{}).Select("COALESCE(SUM(platform_commission), 0)").Scan(&stats.MonthlyCommission)

	db.Model(&models.Transaction{}).Where("status = ?", models.TransactionStatusPending).Count(&stats.PendingTransactions)

	// Payout queue
	open := db.Model(&models.Withdrawal{}).Where("status IN ?", []models.WithdrawalStatus{models.WithdrawalStatusPending, models.WithdrawalStatusProcessing})
	open.Session(&gorm.Session{}).Count(&stats.PendingWithdrawals)
	open.Session(&gorm.Session{}).Select("COALESCE(SUM(amount), 0)").Scan(&stats.PendingWithdrawalSum)

	db.Model(&models.File{}).Where("is_approved = ?", false).Count(&stats.FilesAwaitingApproval)

	return stats, nil
}

// User Management
func (s *AdminService) GetUsers(ctx context.Context, filter AdminUserFilter) ([]models.User, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})

	if filter.UserType != nil {
		query = query.Where("user_type = ?", *filter.UserType)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Search != "" {
		searchTerm := "%" + filter.Search + "%"
		query = query.Where("username LIKE ? OR email LIKE ?", searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "username", "email", "user_type", "status"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	return users, total, nil
}

func (s *AdminService) UpdateUserStatus(ctx context.Context, adminID, userID uuid.UUID, req *UpdateUserStatusRequest) (*models.User, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	// Admin accounts are managed outside the API
	if user.UserType == models.UserTypeAdmin {
		return nil, ErrAdminProtected
	}

	oldStatus := user.Status
	if err := db.Model(&user).Update("status", req.Status).Error; err != nil {
		return nil, fmt.Errorf("failed to update user status: %w", err)
	}
	user.Status = req.Status

	s.createAuditLog(ctx, adminID, "UPDATE_USER_STATUS", "user", &userID, map[string]interface{}{
		"old_status": oldStatus,
		"status":     req.Status,
		"reason":     req.Reason,
	})

	return &user, nil
}

// Transaction Management
func (s *AdminService) GetTransactions(ctx context.Context, filter AdminTransactionFilter) ([]models.Transaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Transaction{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.BuyerID != nil {
		query = query.Where("buyer_id = ?", *filter.BuyerID)
	}
	if filter.SellerID != nil {
		query = query.Where("seller_id = ?", *filter.SellerID)
	}
	if filter.Reference != "" {
		query = query.Where("payment_reference = ?", filter.Reference)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *filter.CreatedBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "amount", "status", "paid_at"}
	query = utils.ApplySort(query, filter.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, filter.PaginationParams)

	var transactions []models.Transaction
	if err := query.Preload("Buyer").Preload("Seller").Preload("File").Find(&transactions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	return transactions, total, nil
}

// Operator queue
func (s *AdminService) GetNotifications(ctx context.Context, unreadOnly bool, params utils.PaginationParams) ([]models.AdminNotification, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.AdminNotification{})
	if unreadOnly {
		query = query.Where("status = ?", "unread")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count admin notifications: %w", err)
	}

	var notifications []models.AdminNotification
	if err := utils.ApplyPagination(query.Order("created_at desc"), params).Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch admin notifications: %w", err)
	}
	return notifications, total, nil
}

func (s *AdminService) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&models.AdminNotification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": "read", "read_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to update admin notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// Helper methods
func (s *AdminService) createAuditLog(ctx context.Context, adminID uuid.UUID, action, resourceType string, resourceID *uuid.UUID, newValues map[string]interface{}) {
	auditLog := &models.AuditLog{
		UserID:       &adminID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		NewValues:    models.JSONB(newValues),
	}

	if err := s.db.WithContext(ctx).Create(auditLog).Error; err != nil {
		logrus.WithError(err).WithField("action", action).Warn("Failed to write audit log")
	}
}
