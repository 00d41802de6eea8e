package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the closed set of money-movement kinds.
type TransactionType string

const (
	TypeSend         TransactionType = "send"
	TypeReceive      TransactionType = "receive"
	TypeDeposit      TransactionType = "deposit"
	TypeWithdraw     TransactionType = "withdraw"
	TypeExchange     TransactionType = "exchange"
	TypeCardPurchase TransactionType = "card_purchase"
	TypeAirtime      TransactionType = "airtime"
)

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
	StatusCancelled  TransactionStatus = "cancelled"
)

// Metadata keys shared between the exchange engine, the transfer engine and
// the balance recomputation in the ledger.
const (
	MetaConvertedAmount = "converted_amount"
	MetaTargetCurrency  = "target_currency"
	MetaCorrelationID   = "correlation_id"
	MetaPhone           = "phone"
)

// JSONMap is a string map stored as a JSON column.
type JSONMap map[string]string

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return errors.New("unsupported type for JSONMap")
}

// Transaction Model. One row per logical money movement on the acting user's
// side; a transfer between two users creates a mirrored send/receive pair that
// shares a correlation id in Metadata. Rows are never deleted; lifecycle moves
// forward only, and a completed row is frozen except for admin notes.
type Transaction struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	UserID           uint              `gorm:"index;not null" json:"user_id"`
	Type             TransactionType   `gorm:"index;not null" json:"type"`
	Amount           decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency         Currency          `gorm:"not null" json:"currency"`
	Fee              decimal.Decimal   `gorm:"type:decimal(20,2);not null;default:0" json:"fee"`
	ExchangeRate     *decimal.Decimal  `gorm:"type:decimal(20,6)" json:"exchange_rate,omitempty"`
	RecipientID      *uint             `json:"recipient_id,omitempty"`
	RecipientDetails string            `json:"recipient_details,omitempty"`
	Status           TransactionStatus `gorm:"index;not null;default:pending" json:"status"`
	Reference        string            `gorm:"uniqueIndex;not null" json:"reference"`
	Metadata         JSONMap           `gorm:"type:json" json:"metadata"`
	AdminNotes       string            `json:"admin_notes,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

// TotalDebit is the amount a debit-side transaction removes from the ledger.
func (t *Transaction) TotalDebit() decimal.Decimal {
	return t.Amount.Add(t.Fee)
}

// IsTerminal reports whether the transaction can no longer change status.
func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed || t.Status == StatusCancelled
}
