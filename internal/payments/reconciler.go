package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"sendpesa/internal/domain"
	"sendpesa/internal/journal"
	"sendpesa/internal/outbox"
	"sendpesa/internal/store"
	"sendpesa/internal/utils"
)

// CallbackPayload is the subset of a provider notification the reconciler
// needs. Providers retry aggressively and do not always echo the internal
// reference, hence the phone fallback.
type CallbackPayload struct {
	ExternalReference string  `json:"external_reference"`
	ProviderReference string  `json:"provider_reference"`
	CheckoutID        string  `json:"checkout_request_id"`
	ResultCode        int     `json:"result_code"`
	Status            string  `json:"status"`
	Amount            float64 `json:"amount"`
	Phone             string  `json:"phone"`
}

// Succeeded reports whether the provider confirmed the payment.
func (p *CallbackPayload) Succeeded() bool {
	return p.ResultCode == 0 && strings.EqualFold(p.Status, "success")
}

// Outcome classifies what a reconcile run did.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnmatched Outcome = "unmatched"
)

// Result is returned to the webhook handler, which always acknowledges.
type Result struct {
	Outcome     Outcome
	Transaction *domain.Transaction
}

// Reconciler matches provider callbacks to pending journal rows and applies
// the ledger mutation exactly once.
type Reconciler struct {
	store   store.Store
	gateway Gateway
}

// NewReconciler returns a callback reconciler.
func NewReconciler(s store.Store, gateway Gateway) *Reconciler {
	return &Reconciler{store: s, gateway: gateway}
}

// Reconcile processes one provider notification. It is safe under arbitrary
// re-delivery: a callback for an already-completed row reports a duplicate
// and mutates nothing. Unmatched callbacks are logged and reported as
// unmatched so the handler can acknowledge; erroring would only make the
// provider retry forever.
func (r *Reconciler) Reconcile(ctx context.Context, payload CallbackPayload) (*Result, error) {
	txn, err := r.match(ctx, payload)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logrus.WithFields(logrus.Fields{
				"external_reference": payload.ExternalReference,
				"phone":              payload.Phone,
				"status":             payload.Status,
			}).Warn("Callback matched no pending transaction")
			return &Result{Outcome: OutcomeUnmatched}, nil
		}
		return nil, err
	}
	if txn.IsTerminal() {
		// Re-delivered callback; the first delivery already settled it.
		logrus.WithFields(logrus.Fields{
			"transaction_id": txn.ID,
			"reference":      txn.Reference,
			"status":         txn.Status,
		}).Info("Duplicate callback ignored")
		return &Result{Outcome: OutcomeDuplicate, Transaction: txn}, nil
	}

	if !payload.Succeeded() {
		failed, err := journal.New(r.store).Transition(ctx, txn.ID, domain.StatusFailed, journal.Extra{
			Metadata: map[string]string{"provider_status": payload.Status},
		})
		if err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeFailed, Transaction: failed}, nil
	}

	switch txn.Type {
	case domain.TypeDeposit:
		return r.completeDeposit(ctx, txn, payload)
	case domain.TypeCardPurchase:
		return r.completeCardPurchase(ctx, txn, payload)
	default:
		// A reference that resolves to a non-gateway row means the payload
		// was malformed or stale; acknowledge without touching it.
		logrus.WithFields(logrus.Fields{
			"transaction_id": txn.ID,
			"type":           txn.Type,
		}).Warn("Callback matched non-gateway transaction")
		return &Result{Outcome: OutcomeUnmatched}, nil
	}
}

// VerifyDeposit asks the gateway for the payment state and finalizes the
// deposit through the same idempotent path the callback uses. The reference
// must belong to the calling user; anyone else's reference reads as missing.
func (r *Reconciler) VerifyDeposit(ctx context.Context, userID uint, reference string) (*Result, error) {
	txn, err := r.store.Journal().ByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, fmt.Errorf("%w: reference %s", store.ErrNotFound, reference)
	}
	status, err := r.gateway.TransactionStatus(ctx, reference)
	if err != nil {
		return nil, err
	}
	return r.Reconcile(ctx, CallbackPayload{
		ExternalReference: reference,
		ResultCode:        status.ResultCode,
		Status:            status.Status,
	})
}

// match resolves the target row by reference, falling back to the most
// recent pending gateway row of the phone's owner.
func (r *Reconciler) match(ctx context.Context, payload CallbackPayload) (*domain.Transaction, error) {
	if payload.ExternalReference != "" {
		txn, err := r.store.Journal().ByReference(ctx, payload.ExternalReference)
		if err == nil {
			return txn, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if payload.Phone == "" {
		return nil, store.ErrNotFound
	}
	normalized, err := utils.NormalizePhone(payload.Phone)
	if err != nil {
		return nil, store.ErrNotFound
	}
	user, err := r.store.Users().ByPhone(ctx, normalized)
	if err != nil {
		return nil, err
	}
	return r.store.Journal().LatestPendingByUser(ctx, user.ID, domain.TypeDeposit, domain.TypeCardPurchase)
}

// completeDeposit credits the wallet exactly once. The terminal check above
// is only a fast path; two copies of the same callback can both get past it,
// so the settlement claim inside the atomic unit is the real arbiter. The
// loser's branch mutates nothing.
func (r *Reconciler) completeDeposit(ctx context.Context, txn *domain.Transaction, payload CallbackPayload) (*Result, error) {
	result := &Result{Outcome: OutcomeCompleted}
	err := r.store.Atomic(ctx, func(tx store.Store) error {
		settled, won, err := journal.New(tx).Settle(ctx, txn.ID, txn.Status, domain.StatusCompleted, journal.Extra{
			Metadata: map[string]string{"provider_reference": payload.ProviderReference},
		})
		if err != nil {
			return err
		}
		result.Transaction = settled
		if !won {
			result.Outcome = OutcomeDuplicate
			return nil
		}
		if err := tx.Users().Credit(ctx, txn.UserID, txn.Currency, txn.Amount); err != nil {
			return err
		}
		return outbox.Enqueue(ctx, tx, outbox.KindDepositCompleted, map[string]any{
			"user_id":        txn.UserID,
			"amount":         txn.Amount,
			"currency":       txn.Currency,
			"transaction_id": txn.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	if result.Outcome == OutcomeDuplicate {
		logrus.WithFields(logrus.Fields{
			"transaction_id": txn.ID,
			"reference":      txn.Reference,
		}).Info("Duplicate callback lost the settlement claim")
		return result, nil
	}
	logrus.WithFields(logrus.Fields{
		"user_id":        txn.UserID,
		"amount":         txn.Amount.String(),
		"currency":       txn.Currency,
		"transaction_id": txn.ID,
	}).Info("Deposit reconciled")
	return result, nil
}

// completeCardPurchase mints the card exactly once, guarded by the same
// settlement claim as deposits.
func (r *Reconciler) completeCardPurchase(ctx context.Context, txn *domain.Transaction, payload CallbackPayload) (*Result, error) {
	result := &Result{Outcome: OutcomeCompleted}
	err := r.store.Atomic(ctx, func(tx store.Store) error {
		settled, won, err := journal.New(tx).Settle(ctx, txn.ID, txn.Status, domain.StatusCompleted, journal.Extra{
			Metadata: map[string]string{"provider_reference": payload.ProviderReference},
		})
		if err != nil {
			return err
		}
		result.Transaction = settled
		if !won {
			result.Outcome = OutcomeDuplicate
			return nil
		}
		card := newVirtualCard(txn.UserID)
		if err := tx.Cards().Create(ctx, card); err != nil {
			return err
		}
		if err := tx.Users().SetHasCard(ctx, txn.UserID, true); err != nil {
			return err
		}
		return outbox.Enqueue(ctx, tx, outbox.KindCardPurchased, map[string]any{
			"user_id":        txn.UserID,
			"card_id":        card.ID,
			"transaction_id": txn.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	if result.Outcome == OutcomeDuplicate {
		logrus.WithFields(logrus.Fields{
			"transaction_id": txn.ID,
			"reference":      txn.Reference,
		}).Info("Duplicate callback lost the settlement claim")
		return result, nil
	}
	logrus.WithFields(logrus.Fields{
		"user_id":        txn.UserID,
		"transaction_id": txn.ID,
	}).Info("Card purchase reconciled")
	return result, nil
}
