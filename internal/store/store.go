package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"sendpesa/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate entry")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// TransactionFilter narrows admin transaction listings.
type TransactionFilter struct {
	UserID *uint
	Type   domain.TransactionType
	Status domain.TransactionStatus
	From   *time.Time
	To     *time.Time
	Offset int
	Limit  int
}

// UserRepo persists users and owns every balance mutation. Credit and Debit
// are single conditional statements at the storage layer, so two concurrent
// requests can never read the same stale balance and lose an update.
type UserRepo interface {
	Create(ctx context.Context, user *domain.User) error
	ByID(ctx context.Context, id uint) (*domain.User, error)
	ByEmail(ctx context.Context, email string) (*domain.User, error)
	ByPhone(ctx context.Context, phone string) (*domain.User, error)
	List(ctx context.Context, offset, limit int) ([]domain.User, int64, error)
	SetHasCard(ctx context.Context, userID uint, hasCard bool) error

	// Credit adds amount to the user's balance in the given currency.
	Credit(ctx context.Context, userID uint, currency domain.Currency, amount decimal.Decimal) error
	// Debit subtracts amount; it fails with ErrInsufficientFunds when the
	// balance does not cover it, without touching the row.
	Debit(ctx context.Context, userID uint, currency domain.Currency, amount decimal.Decimal) error
	// Adjust applies a signed delta without the non-negative guard. Reserved
	// for explicit administrative overrides.
	Adjust(ctx context.Context, userID uint, currency domain.Currency, delta decimal.Decimal) error
}

// JournalRepo persists the transaction journal. Rows are appended and updated
// in place, never deleted.
type JournalRepo interface {
	Append(ctx context.Context, txn *domain.Transaction) error
	ByID(ctx context.Context, id uint) (*domain.Transaction, error)
	ByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	Update(ctx context.Context, txn *domain.Transaction) error
	// Claim is a compare-and-set on status: a single conditional update that
	// moves the row from `from` to `to` and reports whether this caller won.
	// Concurrent callers racing on the same row see exactly one true; the
	// rest get false and must not apply the side effects the transition
	// guards (credits, card creation, debits).
	Claim(ctx context.Context, id uint, from, to domain.TransactionStatus) (bool, error)
	ListByUser(ctx context.Context, userID uint, offset, limit int) ([]domain.Transaction, int64, error)
	List(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, int64, error)
	// CompletedByUserCurrency returns every completed row that can contribute
	// to the user's balance in the given currency (including exchange rows
	// whose credit side targets it). Used by the defensive recomputation.
	CompletedByUserCurrency(ctx context.Context, userID uint, currency domain.Currency) ([]domain.Transaction, error)
	// LatestPendingByUser returns the most recent pending row of the given
	// types for the user. The reconciler uses it for phone-matched callbacks.
	LatestPendingByUser(ctx context.Context, userID uint, types ...domain.TransactionType) (*domain.Transaction, error)
	// StalePending returns pending rows created before the cutoff.
	StalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Transaction, error)
}

// CardRepo persists virtual cards.
type CardRepo interface {
	Create(ctx context.Context, card *domain.VirtualCard) error
	ByUser(ctx context.Context, userID uint) (*domain.VirtualCard, error)
	Update(ctx context.Context, card *domain.VirtualCard) error
	// ExpireDue moves active or frozen cards whose expiry has passed to the
	// expired state and returns how many were touched.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// OutboxRepo persists notification events awaiting dispatch.
type OutboxRepo interface {
	Enqueue(ctx context.Context, event *domain.OutboxEvent) error
	Pending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	Update(ctx context.Context, event *domain.OutboxEvent) error
}

// Store bundles the repositories behind one transactional boundary.
type Store interface {
	Users() UserRepo
	Journal() JournalRepo
	Cards() CardRepo
	Outbox() OutboxRepo

	// Atomic runs fn against a store whose writes commit or roll back as one
	// unit. Exchange and transfer mutations that touch two balances must go
	// through it; a half-applied write is data corruption, not a retry case.
	Atomic(ctx context.Context, fn func(Store) error) error
}
