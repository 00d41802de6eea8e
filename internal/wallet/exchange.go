package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"sendpesa/internal/domain"
	"sendpesa/internal/journal"
	"sendpesa/internal/outbox"
	"sendpesa/internal/store"
)

// ExchangeResult is what the convert endpoint returns.
type ExchangeResult struct {
	ConvertedAmount decimal.Decimal     `json:"converted_amount"`
	Fee             decimal.Decimal     `json:"fee"`
	Rate            decimal.Decimal     `json:"rate"`
	Transaction     *domain.Transaction `json:"transaction"`
}

// Exchange converts amount from one of the user's balances into the other.
// Fee is 1.5% of the amount, debited on top in the source currency. The
// debit, the credit and the journal row are one atomic unit; a failure at
// any step leaves both balances untouched.
func (s *Service) Exchange(ctx context.Context, userID uint, amount decimal.Decimal, from, to domain.Currency) (*ExchangeResult, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if !from.Valid() || !to.Valid() {
		return nil, ErrInvalidCurrency
	}
	if from == to {
		return nil, ErrSameCurrency
	}
	user, err := s.store.Users().ByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	// Exchange is gated on card ownership; expired and inactive cards do not
	// count, the user has to purchase a new one.
	card, err := s.store.Cards().ByUser(ctx, userID)
	if err != nil || card.Terminal() {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, ErrNoCard
	}

	fee := amount.Mul(exchangeFeeRate).Round(2)
	totalDebit := amount.Add(fee)
	// Rate lookup happens before the transactional boundary; external calls
	// never run inside a ledger mutation.
	rate := s.oracle.Rate(ctx, from, to)
	converted := amount.Mul(rate).Round(2)

	var txn *domain.Transaction
	err = s.store.Atomic(ctx, func(tx store.Store) error {
		if err := tx.Users().Debit(ctx, userID, from, totalDebit); err != nil {
			return err
		}
		if err := tx.Users().Credit(ctx, userID, to, converted); err != nil {
			return err
		}
		txn, err = journal.New(tx).Append(ctx, &domain.Transaction{
			UserID:       userID,
			Type:         domain.TypeExchange,
			Amount:       amount,
			Currency:     from,
			Fee:          fee,
			ExchangeRate: &rate,
			Status:       domain.StatusCompleted,
			Reference:    "EXC-" + uuid.NewString(),
			Metadata: domain.JSONMap{
				domain.MetaConvertedAmount: converted.StringFixed(2),
				domain.MetaTargetCurrency:  string(to),
			},
		})
		if err != nil {
			return err
		}
		return outbox.Enqueue(ctx, tx, outbox.KindExchangeCompleted, map[string]any{
			"user_id":          userID,
			"email":            user.Email,
			"amount":           amount,
			"from":             from,
			"to":               to,
			"converted_amount": converted,
			"fee":              fee,
			"rate":             rate,
		})
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"amount":  amount.String(),
			"from":    from,
			"to":      to,
			"error":   err.Error(),
		}).Error("Exchange failed")
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"user_id":   userID,
		"amount":    amount.String(),
		"from":      from,
		"to":        to,
		"rate":      rate.String(),
		"fee":       fee.String(),
		"type":      domain.TypeExchange,
		"timestamp": time.Now().Format(time.RFC3339),
	}).Info("Exchange transaction")
	return &ExchangeResult{ConvertedAmount: converted, Fee: fee, Rate: rate, Transaction: txn}, nil
}
