package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CardStatus is the lifecycle state of a virtual card.
type CardStatus string

const (
	CardActive   CardStatus = "active"
	CardFrozen   CardStatus = "frozen"
	CardExpired  CardStatus = "expired"
	CardInactive CardStatus = "inactive"
)

// VirtualCard Model. A card is created only by the callback reconciler after
// a card-purchase payment succeeds. Once expired or inactive it can never be
// reactivated; the user has to purchase a new one.
type VirtualCard struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	UserID     uint            `gorm:"index;not null" json:"user_id"`
	CardNumber string          `gorm:"not null" json:"card_number"`
	Expiry     time.Time       `gorm:"not null" json:"expiry"`
	CVV        string          `gorm:"not null" json:"-"`
	Balance    decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	Status     CardStatus      `gorm:"not null;default:active" json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Usable reports whether the card currently gates feature access.
func (c *VirtualCard) Usable() bool {
	return c.Status == CardActive
}

// Terminal reports whether the card can never come back into service.
func (c *VirtualCard) Terminal() bool {
	return c.Status == CardExpired || c.Status == CardInactive
}
