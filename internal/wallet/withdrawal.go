package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"sendpesa/internal/domain"
	"sendpesa/internal/journal"
	"sendpesa/internal/ledger"
	"sendpesa/internal/outbox"
	"sendpesa/internal/store"
)

// RequestWithdrawal opens a withdrawal for manual admin review. The gate is
// a balance recomputed from completed journal rows, not the stored scalar:
// if the two have drifted, the journal-derived figure is the safer one to
// hold a pending debit against. Nothing is persisted when the check fails,
// and the ledger is untouched until an admin approves.
func (s *Service) RequestWithdrawal(ctx context.Context, userID uint, amount decimal.Decimal, currency domain.Currency, destination string) (*domain.Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if !currency.Valid() {
		return nil, ErrInvalidCurrency
	}
	user, err := s.store.Users().ByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	fee := amount.Mul(s.withdrawFeeRate).Round(2)
	total := amount.Add(fee)

	recomputed, err := ledger.New(s.store).Recompute(ctx, userID, currency)
	if err != nil {
		return nil, err
	}
	if recomputed.LessThan(total) {
		return nil, fmt.Errorf("%w: recomputed balance %s below %s", store.ErrInsufficientFunds, recomputed.StringFixed(2), total.StringFixed(2))
	}

	var txn *domain.Transaction
	err = s.store.Atomic(ctx, func(tx store.Store) error {
		txn, err = journal.New(tx).Append(ctx, &domain.Transaction{
			UserID:    userID,
			Type:      domain.TypeWithdraw,
			Amount:    amount,
			Currency:  currency,
			Fee:       fee,
			Status:    domain.StatusPending,
			Reference: "WDR-" + uuid.NewString(),
			Metadata:  domain.JSONMap{"destination": destination},
		})
		if err != nil {
			return err
		}
		return outbox.Enqueue(ctx, tx, outbox.KindWithdrawalRequested, map[string]any{
			"user_id":        userID,
			"email":          user.Email,
			"amount":         amount,
			"currency":       currency,
			"fee":            fee,
			"transaction_id": txn.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"user_id":        userID,
		"amount":         amount.String(),
		"currency":       currency,
		"transaction_id": txn.ID,
		"type":           domain.TypeWithdraw,
		"timestamp":      time.Now().Format(time.RFC3339),
	}).Info("Withdrawal requested")
	return txn, nil
}

// ApproveWithdrawal is the only point at which a withdrawal debits the
// ledger. Approving an already-completed withdrawal returns it unchanged,
// so a double click or retried request can never debit twice.
func (s *Service) ApproveWithdrawal(ctx context.Context, id uint, notes string) (*domain.Transaction, error) {
	var txn *domain.Transaction
	err := s.store.Atomic(ctx, func(tx store.Store) error {
		var err error
		txn, err = tx.Journal().ByID(ctx, id)
		if err != nil {
			return err
		}
		if txn.Type != domain.TypeWithdraw {
			return ErrNotWithdrawal
		}
		if txn.Status == domain.StatusCompleted {
			return nil // already approved, nothing to redo
		}
		// The settlement claim, not the read above, decides the winner: two
		// concurrent approvals can both see a pending row under snapshot
		// reads, but only one wins the conditional update and debits. The
		// debit comes after the claim so a failed debit rolls it back.
		var won bool
		txn, won, err = journal.New(tx).Settle(ctx, id, txn.Status, domain.StatusCompleted, journal.Extra{AdminNotes: notes})
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		if err := tx.Users().Debit(ctx, txn.UserID, txn.Currency, txn.TotalDebit()); err != nil {
			return err
		}
		return outbox.Enqueue(ctx, tx, outbox.KindWithdrawalApproved, map[string]any{
			"user_id":        txn.UserID,
			"amount":         txn.Amount,
			"currency":       txn.Currency,
			"transaction_id": txn.ID,
		})
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"transaction_id": id,
			"error":          err.Error(),
		}).Error("Withdrawal approval failed")
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"user_id":        txn.UserID,
		"amount":         txn.Amount.String(),
		"currency":       txn.Currency,
	}).Info("Withdrawal approved")
	return txn, nil
}

// RejectWithdrawal fails the request with operator notes. The ledger is
// never touched on rejection.
func (s *Service) RejectWithdrawal(ctx context.Context, id uint, notes string) (*domain.Transaction, error) {
	var txn *domain.Transaction
	err := s.store.Atomic(ctx, func(tx store.Store) error {
		var err error
		txn, err = tx.Journal().ByID(ctx, id)
		if err != nil {
			return err
		}
		if txn.Type != domain.TypeWithdraw {
			return ErrNotWithdrawal
		}
		txn, err = journal.New(tx).Transition(ctx, id, domain.StatusFailed, journal.Extra{AdminNotes: notes})
		if err != nil {
			return err
		}
		return outbox.Enqueue(ctx, tx, outbox.KindWithdrawalRejected, map[string]any{
			"user_id":        txn.UserID,
			"amount":         txn.Amount,
			"currency":       txn.Currency,
			"transaction_id": txn.ID,
			"notes":          notes,
		})
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"user_id":        txn.UserID,
	}).Info("Withdrawal rejected")
	return txn, nil
}
