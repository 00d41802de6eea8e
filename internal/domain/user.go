package domain

import (
	"github.com/shopspring/decimal"
)

// Currency is one of the wallet currencies a user can hold a balance in.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyKES Currency = "KES"
)

// Valid reports whether c is a supported wallet currency.
func (c Currency) Valid() bool {
	return c == CurrencyUSD || c == CurrencyKES
}

// User Model. Balances are only ever mutated through the ledger store,
// which appends a matching Transaction in the same database transaction.
type User struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Email         string          `gorm:"unique;not null" json:"email"`
	Phone         string          `gorm:"index" json:"phone"`
	Password      string          `gorm:"not null" json:"-"` // bcrypt hash
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	Country       string          `json:"country"`
	Role          string          `gorm:"default:user" json:"role"` // user or admin
	BalanceUSD    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance_usd"`
	BalanceKES    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance_kes"`
	EmailVerified bool            `gorm:"default:false" json:"email_verified"`
	PhoneVerified bool            `gorm:"default:false" json:"phone_verified"`
	KYCVerified   bool            `gorm:"default:false" json:"kyc_verified"`
	HasCard       bool            `gorm:"default:false" json:"has_card"`
	OTPEnabled    bool            `gorm:"default:true" json:"otp_enabled"`
	CreatedAt     int64           `gorm:"autoCreateTime:milli" json:"created_at"`
}

// FullName returns the display name used in transaction recipient details.
func (u *User) FullName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Email
	}
	return u.FirstName + " " + u.LastName
}

// Balance returns the stored scalar balance for the given currency.
func (u *User) Balance(currency Currency) decimal.Decimal {
	if currency == CurrencyKES {
		return u.BalanceKES
	}
	return u.BalanceUSD
}
