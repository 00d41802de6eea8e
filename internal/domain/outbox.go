package domain

import "time"

// OutboxStatus is the delivery state of an outbox event.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxEvent is a notification (or other side effect) recorded in the same
// database transaction as the financial mutation that triggered it. The
// dispatcher delivers committed events on its own schedule; delivery failures
// never reach the financial path.
type OutboxEvent struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	Kind      string       `gorm:"index;not null" json:"kind"` // e.g. transfer.sent, otp.login
	Payload   string       `gorm:"type:json;not null" json:"payload"`
	Status    OutboxStatus `gorm:"index;not null;default:pending" json:"status"`
	Attempts  int          `gorm:"not null;default:0" json:"attempts"`
	LastError string       `json:"last_error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	SentAt    *time.Time   `json:"sent_at,omitempty"`
}
