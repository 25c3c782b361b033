package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Username     string     `json:"username" gorm:"uniqueIndex;size:50;not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"`
	UserType     UserType   `json:"user_type" gorm:"type:varchar(20);not null"`
	Status       UserStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
	ProfileData  JSONB      `json:"profile_data" gorm:"type:jsonb"`
	LastLoginAt  *time.Time `json:"last_login_at"`

	Earnings       Earnings    `json:"earnings" gorm:"embedded;embeddedPrefix:earnings_"`
	Bank           BankAccount `json:"bank" gorm:"embedded;embeddedPrefix:bank_"`
	BankVerifiedAt *time.Time  `json:"bank_verified_at"`
}

// Earnings is the seller ledger. All values are in minor currency units and
// Available + Pending + Withdrawn always equals Total.
type Earnings struct {
	Total     int64 `json:"total" gorm:"not null;default:0"`
	Available int64 `json:"available" gorm:"not null;default:0"`
	Pending   int64 `json:"pending" gorm:"not null;default:0"`
	Withdrawn int64 `json:"withdrawn" gorm:"not null;default:0"`
}

// Consistent reports whether the ledger buckets add up.
func (e Earnings) Consistent() bool {
	return e.Available >= 0 && e.Pending >= 0 && e.Withdrawn >= 0 &&
		e.Available+e.Pending+e.Withdrawn == e.Total
}

type BankAccount struct {
	Code          string `json:"bank_code" gorm:"size:20"`
	Name          string `json:"bank_name" gorm:"size:100"`
	AccountNumber string `json:"account_number" gorm:"size:20"`
	AccountName   string `json:"account_name" gorm:"size:150"`
}

func (b BankAccount) IsComplete() bool {
	return b.Code != "" && b.AccountNumber != ""
}

func (u *User) IsSeller() bool {
	return u.UserType == UserTypeSeller || u.UserType == UserTypeAdmin
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}
