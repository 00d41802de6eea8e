package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sendpesa/internal/domain"
	"sendpesa/internal/rates"
	"sendpesa/internal/store"
)

func newTestService(s store.Store) *Service {
	return New(s, rates.Fixed{}, decimal.Zero)
}

func seedUser(t *testing.T, s store.Store, email, usd, kes string) *domain.User {
	t.Helper()
	user := &domain.User{
		Email:      email,
		FirstName:  "Test",
		LastName:   "User",
		BalanceUSD: decimal.RequireFromString(usd),
		BalanceKES: decimal.RequireFromString(kes),
	}
	if err := s.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return user
}

func seedActiveCard(t *testing.T, s store.Store, userID uint) {
	t.Helper()
	err := s.Cards().Create(context.Background(), &domain.VirtualCard{
		UserID:     userID,
		CardNumber: "4000000000000000",
		CVV:        "123",
		Expiry:     time.Now().AddDate(3, 0, 0),
		Status:     domain.CardActive,
	})
	if err != nil {
		t.Fatalf("seed card: %v", err)
	}
}

func balance(t *testing.T, s store.Store, userID uint, currency domain.Currency) decimal.Decimal {
	t.Helper()
	user, err := s.Users().ByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("reload user %d: %v", userID, err)
	}
	return user.Balance(currency)
}

func journalCount(t *testing.T, s store.Store, userID uint) int64 {
	t.Helper()
	_, total, err := s.Journal().ListByUser(context.Background(), userID, 0, 100)
	if err != nil {
		t.Fatalf("list journal: %v", err)
	}
	return total
}

func pendingOutbox(t *testing.T, s store.Store) []domain.OutboxEvent {
	t.Helper()
	events, err := s.Outbox().Pending(context.Background(), 100)
	if err != nil {
		t.Fatalf("outbox pending: %v", err)
	}
	return events
}

func outboxKinds(t *testing.T, s store.Store) map[string]int {
	t.Helper()
	kinds := map[string]int{}
	for _, e := range pendingOutbox(t, s) {
		kinds[e.Kind]++
	}
	return kinds
}
