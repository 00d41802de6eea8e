package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"sendpesa/internal/domain"
	"sendpesa/internal/journal"
	"sendpesa/internal/outbox"
	"sendpesa/internal/store"
	"sendpesa/internal/utils"
)

// BuyAirtime debits the KES balance and records a completed airtime row.
// The actual top-up request goes through the outbox, so a slow or failing
// airtime provider can never hold up or unwind the ledger debit; the
// dispatcher retries delivery on its own.
func (s *Service) BuyAirtime(ctx context.Context, userID uint, amount decimal.Decimal, phone string) (*domain.Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	normalized, err := utils.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	user, err := s.store.Users().ByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var txn *domain.Transaction
	err = s.store.Atomic(ctx, func(tx store.Store) error {
		if err := tx.Users().Debit(ctx, userID, domain.CurrencyKES, amount); err != nil {
			return err
		}
		txn, err = journal.New(tx).Append(ctx, &domain.Transaction{
			UserID:    userID,
			Type:      domain.TypeAirtime,
			Amount:    amount,
			Currency:  domain.CurrencyKES,
			Status:    domain.StatusCompleted,
			Reference: "AIR-" + uuid.NewString(),
			Metadata:  domain.JSONMap{domain.MetaPhone: normalized},
		})
		if err != nil {
			return err
		}
		return outbox.Enqueue(ctx, tx, outbox.KindAirtimeRequested, map[string]any{
			"user_id":        userID,
			"email":          user.Email,
			"amount":         amount,
			"phone":          normalized,
			"transaction_id": txn.ID,
		})
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"amount":  amount.String(),
			"error":   err.Error(),
		}).Error("Airtime purchase failed")
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"user_id":   userID,
		"amount":    amount.String(),
		"phone":     normalized,
		"type":      domain.TypeAirtime,
		"timestamp": time.Now().Format(time.RFC3339),
	}).Info("Airtime transaction")
	return txn, nil
}
