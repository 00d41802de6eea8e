// Package journal owns the transaction lifecycle. Rows move forward only:
// pending -> processing -> completed | failed, pending -> completed | failed
// | cancelled. A transition to the current status is an idempotent no-op so
// webhook retries never error.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sendpesa/internal/domain"
	"sendpesa/internal/store"
)

var ErrInvalidTransition = errors.New("invalid status transition")

var allowed = map[domain.TransactionStatus][]domain.TransactionStatus{
	domain.StatusPending: {
		domain.StatusProcessing,
		domain.StatusCompleted,
		domain.StatusFailed,
		domain.StatusCancelled,
	},
	domain.StatusProcessing: {
		domain.StatusCompleted,
		domain.StatusFailed,
	},
}

// Extra carries the operator fields a transition may set. Completed rows
// accept nothing else.
type Extra struct {
	AdminNotes string
	Metadata   map[string]string
}

// Journal appends and transitions transactions through a store.
type Journal struct {
	store store.Store
}

// New returns a journal over the given store.
func New(s store.Store) *Journal {
	return &Journal{store: s}
}

// Append persists a new transaction, defaulting the status to pending.
func (j *Journal) Append(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, error) {
	if txn.Status == "" {
		txn.Status = domain.StatusPending
	}
	if txn.Metadata == nil {
		txn.Metadata = domain.JSONMap{}
	}
	if txn.Status == domain.StatusCompleted && txn.CompletedAt == nil {
		now := time.Now().UTC()
		txn.CompletedAt = &now
	}
	if err := j.store.Journal().Append(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// Transition moves a transaction to newStatus. Same-status transitions
// succeed without touching the row.
func (j *Journal) Transition(ctx context.Context, id uint, newStatus domain.TransactionStatus, extra Extra) (*domain.Transaction, error) {
	txn, err := j.store.Journal().ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.Status == newStatus {
		// Idempotent retry, e.g. a re-delivered webhook.
		return txn, nil
	}
	if !transitionAllowed(txn.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, txn.Status, newStatus)
	}
	txn.Status = newStatus
	if newStatus == domain.StatusCompleted {
		now := time.Now().UTC()
		txn.CompletedAt = &now
	}
	applyExtra(txn, extra)
	if err := j.store.Journal().Update(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// Settle moves the row from `from` to `to` through the storage-level
// compare-and-set. Of any number of concurrent callers exactly one observes
// won=true; the losers get the row's current state and must skip the side
// effects the settlement guards. Extra is applied by the winner only.
func (j *Journal) Settle(ctx context.Context, id uint, from, to domain.TransactionStatus, extra Extra) (*domain.Transaction, bool, error) {
	if !transitionAllowed(from, to) {
		return nil, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	won, err := j.store.Journal().Claim(ctx, id, from, to)
	if err != nil {
		return nil, false, err
	}
	txn, err := j.store.Journal().ByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !won {
		return txn, false, nil
	}
	if extra.AdminNotes != "" || len(extra.Metadata) > 0 {
		applyExtra(txn, extra)
		if err := j.store.Journal().Update(ctx, txn); err != nil {
			return nil, false, err
		}
	}
	return txn, true, nil
}

// Annotate sets operator notes on a transaction in any state. It is the only
// mutation permitted after completion.
func (j *Journal) Annotate(ctx context.Context, id uint, notes string) (*domain.Transaction, error) {
	txn, err := j.store.Journal().ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	txn.AdminNotes = notes
	if err := j.store.Journal().Update(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func transitionAllowed(from, to domain.TransactionStatus) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

func applyExtra(txn *domain.Transaction, extra Extra) {
	if extra.AdminNotes != "" {
		txn.AdminNotes = extra.AdminNotes
	}
	if len(extra.Metadata) > 0 {
		if txn.Metadata == nil {
			txn.Metadata = domain.JSONMap{}
		}
		for k, v := range extra.Metadata {
			txn.Metadata[k] = v
		}
	}
}
