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
)

// TransferResult carries the mirrored pair of journal rows.
type TransferResult struct {
	SendTxn    *domain.Transaction `json:"send_transaction"`
	ReceiveTxn *domain.Transaction `json:"receive_transaction"`
}

// Transfer moves amount between two users' balances in the same currency.
// No fee is charged between platform users. It appends a send row owned by
// the sender and a receive row owned by the recipient; the two share a
// correlation id in metadata but are independently owned.
func (s *Service) Transfer(ctx context.Context, fromUserID, toUserID uint, amount decimal.Decimal, currency domain.Currency) (*TransferResult, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if !currency.Valid() {
		return nil, ErrInvalidCurrency
	}
	if fromUserID == toUserID {
		return nil, ErrSelfTransfer
	}
	sender, err := s.store.Users().ByID(ctx, fromUserID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.store.Users().ByID(ctx, toUserID)
	if err != nil {
		return nil, err
	}

	correlation := uuid.NewString()
	result := &TransferResult{}
	err = s.store.Atomic(ctx, func(tx store.Store) error {
		if err := tx.Users().Debit(ctx, fromUserID, currency, amount); err != nil {
			return err
		}
		if err := tx.Users().Credit(ctx, toUserID, currency, amount); err != nil {
			return err
		}
		j := journal.New(tx)
		result.SendTxn, err = j.Append(ctx, &domain.Transaction{
			UserID:           fromUserID,
			Type:             domain.TypeSend,
			Amount:           amount,
			Currency:         currency,
			RecipientID:      &recipient.ID,
			RecipientDetails: recipient.FullName(),
			Status:           domain.StatusCompleted,
			Reference:        "TRF-" + uuid.NewString(),
			Metadata:         domain.JSONMap{domain.MetaCorrelationID: correlation},
		})
		if err != nil {
			return err
		}
		result.ReceiveTxn, err = j.Append(ctx, &domain.Transaction{
			UserID:           toUserID,
			Type:             domain.TypeReceive,
			Amount:           amount,
			Currency:         currency,
			RecipientID:      &sender.ID,
			RecipientDetails: sender.FullName(),
			Status:           domain.StatusCompleted,
			Reference:        "TRF-" + uuid.NewString(),
			Metadata:         domain.JSONMap{domain.MetaCorrelationID: correlation},
		})
		if err != nil {
			return err
		}
		if err := outbox.Enqueue(ctx, tx, outbox.KindTransferSent, map[string]any{
			"user_id":   fromUserID,
			"email":     sender.Email,
			"amount":    amount,
			"currency":  currency,
			"recipient": recipient.FullName(),
		}); err != nil {
			return err
		}
		return outbox.Enqueue(ctx, tx, outbox.KindTransferReceived, map[string]any{
			"user_id":  toUserID,
			"email":    recipient.Email,
			"amount":   amount,
			"currency": currency,
			"sender":   sender.FullName(),
		})
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"from_user_id": fromUserID,
			"to_user_id":   toUserID,
			"amount":       amount.String(),
			"currency":     currency,
			"error":        err.Error(),
		}).Error("Transfer failed")
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"from_user_id": fromUserID,
		"to_user_id":   toUserID,
		"amount":       amount.String(),
		"currency":     currency,
		"type":         domain.TypeSend,
		"timestamp":    time.Now().Format(time.RFC3339),
	}).Info("Transfer transaction")
	return result, nil
}
