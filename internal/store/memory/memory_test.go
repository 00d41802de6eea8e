package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"sendpesa/internal/domain"
	"sendpesa/internal/store"
)

func TestAtomicRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := &domain.User{Email: "atomic@example.com", BalanceUSD: decimal.NewFromInt(100)}
	if err := s.Users().Create(ctx, user); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx store.Store) error {
		if err := tx.Users().Debit(ctx, user.ID, domain.CurrencyUSD, decimal.NewFromInt(60)); err != nil {
			return err
		}
		if err := tx.Journal().Append(ctx, &domain.Transaction{
			UserID: user.ID, Type: domain.TypeWithdraw,
			Amount: decimal.NewFromInt(60), Currency: domain.CurrencyUSD,
			Status: domain.StatusCompleted, Reference: "WDR-rollback",
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	reloaded, err := s.Users().ByID(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.BalanceUSD.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want rolled back 100", reloaded.BalanceUSD)
	}
	if _, err := s.Journal().ByReference(ctx, "WDR-rollback"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("journal row survived rollback: %v", err)
	}
}

func TestAtomicCommitsOnSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := &domain.User{Email: "atomic@example.com", BalanceUSD: decimal.NewFromInt(100)}
	if err := s.Users().Create(ctx, user); err != nil {
		t.Fatal(err)
	}

	err := s.Atomic(ctx, func(tx store.Store) error {
		return tx.Users().Debit(ctx, user.ID, domain.CurrencyUSD, decimal.NewFromInt(60))
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}
	reloaded, err := s.Users().ByID(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.BalanceUSD.Equal(decimal.NewFromInt(40)) {
		t.Errorf("balance = %s, want 40", reloaded.BalanceUSD)
	}
}

func TestDebitGuard(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := &domain.User{Email: "guard@example.com", BalanceKES: decimal.NewFromInt(10)}
	if err := s.Users().Create(ctx, user); err != nil {
		t.Fatal(err)
	}
	err := s.Users().Debit(ctx, user.ID, domain.CurrencyKES, decimal.NewFromInt(11))
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Errorf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestJournalReferenceUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	row := func() *domain.Transaction {
		return &domain.Transaction{
			UserID: 1, Type: domain.TypeDeposit,
			Amount: decimal.NewFromInt(5), Currency: domain.CurrencyKES,
			Status: domain.StatusPending, Reference: "DEP-unique",
		}
	}
	if err := s.Journal().Append(ctx, row()); err != nil {
		t.Fatal(err)
	}
	if err := s.Journal().Append(ctx, row()); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := &domain.User{Email: "race@example.com", BalanceKES: decimal.NewFromInt(100)}
	if err := s.Users().Create(ctx, user); err != nil {
		t.Fatal(err)
	}

	// 25 workers each try to take 10 from a balance of 100; exactly 10 can
	// succeed, and the losers must leave the row untouched.
	const workers = 25
	var wg sync.WaitGroup
	var succeeded int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Users().Debit(ctx, user.ID, domain.CurrencyKES, decimal.NewFromInt(10))
			switch {
			case err == nil:
				atomic.AddInt64(&succeeded, 1)
			case !errors.Is(err, store.ErrInsufficientFunds):
				t.Errorf("unexpected debit error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Errorf("successful debits = %d, want 10", succeeded)
	}
	reloaded, err := s.Users().ByID(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.BalanceKES.IsNegative() {
		t.Errorf("balance overdrawn: %s", reloaded.BalanceKES)
	}
	want := decimal.NewFromInt(100 - 10*succeeded)
	if !reloaded.BalanceKES.Equal(want) {
		t.Errorf("balance = %s, want %s", reloaded.BalanceKES, want)
	}
}

func TestClaimSingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	txn := &domain.Transaction{
		UserID: 1, Type: domain.TypeDeposit,
		Amount: decimal.NewFromInt(5), Currency: domain.CurrencyKES,
		Status: domain.StatusPending, Reference: "DEP-claim",
	}
	if err := s.Journal().Append(ctx, txn); err != nil {
		t.Fatal(err)
	}

	const claimants = 10
	var wg sync.WaitGroup
	var wins int64
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := s.Journal().Claim(ctx, txn.ID, domain.StatusPending, domain.StatusCompleted)
			if err != nil {
				t.Errorf("Claim: %v", err)
				return
			}
			if won {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
	reloaded, err := s.Journal().ByID(ctx, txn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want completed", reloaded.Status)
	}
	if reloaded.CompletedAt == nil {
		t.Error("completed row missing completion time")
	}
}
