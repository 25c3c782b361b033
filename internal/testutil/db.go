// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/digistore-backend/internal/database"
	"github.com/javajoker/digistore-backend/internal/models"
)

// NewDB returns a migrated in-memory SQLite database. A single connection is
// used so every query sees the same memory database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))

	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, userType models.UserType) *models.User {
	t.Helper()

	name := "u" + uuid.NewString()[:8]
	user := &models.User{
		Username: name,
		Email:    fmt.Sprintf("%s@example.com", name),
		UserType: userType,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, user.SetPassword("Secret123!"))
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateSeller creates a seller with bank details on file.
func CreateSeller(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	seller := CreateUser(t, db, models.UserTypeSeller)
	seller.Bank = models.BankAccount{
		Code:          "044",
		Name:          "Access Bank",
		AccountNumber: "0690000031",
		AccountName:   "Ada Seller",
	}
	require.NoError(t, db.Save(seller).Error)
	return seller
}

func CreateFile(t *testing.T, db *gorm.DB, sellerID uuid.UUID, price int64) *models.File {
	t.Helper()

	file := &models.File{
		SellerID:   sellerID,
		Title:      "Go Concurrency Patterns",
		Price:      price,
		Currency:   "NGN",
		StorageKey: "files/go-patterns.pdf",
		FileURL:    "https://cdn.example.com/files/go-patterns.pdf",
		IsApproved: true,
		IsActive:   true,
	}
	require.NoError(t, db.Create(file).Error)
	return file
}

// SetEarnings overwrites a user's ledger directly, for arranging test state.
func SetEarnings(t *testing.T, db *gorm.DB, userID uuid.UUID, e models.Earnings) {
	t.Helper()

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"earnings_total":     e.Total,
		"earnings_available": e.Available,
		"earnings_pending":   e.Pending,
		"earnings_withdrawn": e.Withdrawn,
	}).Error)
}

func Earnings(t *testing.T, db *gorm.DB, userID uuid.UUID) models.Earnings {
	t.Helper()

	var user models.User
	require.NoError(t, db.First(&user, "id = ?", userID).Error)
	return user.Earnings
}
