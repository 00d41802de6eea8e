// Package outbox decouples notification delivery from the financial path.
// Events are recorded in the same database transaction as the mutation that
// caused them; the dispatcher delivers committed events on its own schedule.
package outbox

import (
	"context"
	"encoding/json"

	"sendpesa/internal/domain"
	"sendpesa/internal/store"
)

// Event kinds published on the notifications subject space.
const (
	KindTransferSent        = "transfer.sent"
	KindTransferReceived    = "transfer.received"
	KindExchangeCompleted   = "exchange.completed"
	KindDepositCompleted    = "deposit.completed"
	KindCardPurchased       = "card.purchased"
	KindAirtimeRequested    = "airtime.requested"
	KindWithdrawalRequested = "withdrawal.requested"
	KindWithdrawalApproved  = "withdrawal.approved"
	KindWithdrawalRejected  = "withdrawal.rejected"
	KindLoginOTP            = "otp.login"
	KindLoginAlert          = "login.alert"
)

// Enqueue records an event for later delivery. Call it with the
// transaction-scoped store so the event commits with the mutation.
func Enqueue(ctx context.Context, s store.Store, kind string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.Outbox().Enqueue(ctx, &domain.OutboxEvent{
		Kind:    kind,
		Payload: string(b),
		Status:  domain.OutboxPending,
	})
}
