package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"sendpesa/internal/domain"
	"sendpesa/internal/journal"
	"sendpesa/internal/store"
)

// AdjustBalance applies a signed administrative delta. It is the one
// sanctioned bypass of the non-negative balance invariant, and it still
// leaves an audit row: the balance is never mutated without a matching
// journal entry.
func (s *Service) AdjustBalance(ctx context.Context, userID uint, currency domain.Currency, delta decimal.Decimal, notes string) (*domain.Transaction, error) {
	if delta.IsZero() {
		return nil, ErrInvalidAmount
	}
	if !currency.Valid() {
		return nil, ErrInvalidCurrency
	}
	txType := domain.TypeDeposit
	amount := delta
	if delta.IsNegative() {
		txType = domain.TypeWithdraw
		amount = delta.Neg()
	}
	var txn *domain.Transaction
	err := s.store.Atomic(ctx, func(tx store.Store) error {
		if err := tx.Users().Adjust(ctx, userID, currency, delta); err != nil {
			return err
		}
		var err error
		txn, err = journal.New(tx).Append(ctx, &domain.Transaction{
			UserID:     userID,
			Type:       txType,
			Amount:     amount,
			Currency:   currency,
			Status:     domain.StatusCompleted,
			Reference:  "ADJ-" + uuid.NewString(),
			AdminNotes: notes,
			Metadata:   domain.JSONMap{"admin_adjustment": "true"},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"user_id":  userID,
		"delta":    delta.String(),
		"currency": currency,
	}).Info("Administrative balance adjustment")
	return txn, nil
}
