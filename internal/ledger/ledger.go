// Package ledger exposes the per-user, per-currency balance operations.
// The stored scalar balance is authoritative; Recompute derives a balance
// from the journal as a defensive consistency check only.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"sendpesa/internal/domain"
	"sendpesa/internal/store"
)

// Ledger wraps a store. It is cheap to construct, so callers inside an
// Atomic block build one over the transaction-scoped store.
type Ledger struct {
	store store.Store
}

// New returns a ledger over the given store.
func New(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// Balance returns the stored scalar balance.
func (l *Ledger) Balance(ctx context.Context, userID uint, currency domain.Currency) (decimal.Decimal, error) {
	user, err := l.store.Users().ByID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance(currency), nil
}

// Credit adds amount to the balance and returns the new value.
func (l *Ledger) Credit(ctx context.Context, userID uint, currency domain.Currency, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := l.store.Users().Credit(ctx, userID, currency, amount); err != nil {
		return decimal.Zero, err
	}
	return l.Balance(ctx, userID, currency)
}

// Debit subtracts amount (fees included by the caller) and returns the new
// value. Fails with store.ErrInsufficientFunds without touching the row.
func (l *Ledger) Debit(ctx context.Context, userID uint, currency domain.Currency, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := l.store.Users().Debit(ctx, userID, currency, amount); err != nil {
		return decimal.Zero, err
	}
	return l.Balance(ctx, userID, currency)
}

// Recompute derives the balance from completed journal rows. Exchange rows
// contribute their debit side in their own currency and their credit side in
// the metadata target currency. Card purchases are paid through the gateway,
// so they never touch the wallet.
func (l *Ledger) Recompute(ctx context.Context, userID uint, currency domain.Currency) (decimal.Decimal, error) {
	txns, err := l.store.Journal().CompletedByUserCurrency(ctx, userID, currency)
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	for i := range txns {
		txn := &txns[i]
		switch txn.Type {
		case domain.TypeReceive, domain.TypeDeposit:
			balance = balance.Add(txn.Amount)
		case domain.TypeSend, domain.TypeWithdraw, domain.TypeAirtime:
			balance = balance.Sub(txn.TotalDebit())
		case domain.TypeExchange:
			if txn.Currency == currency {
				balance = balance.Sub(txn.TotalDebit())
			} else if converted, err := decimal.NewFromString(txn.Metadata[domain.MetaConvertedAmount]); err == nil {
				balance = balance.Add(converted)
			}
		}
	}
	return balance, nil
}
