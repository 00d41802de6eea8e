package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sendpesa/internal/domain"
	"sendpesa/internal/outbox"
	"sendpesa/internal/store"
	"sendpesa/internal/store/memory"
)

func TestExchangeFeeChargedOnTop(t *testing.T) {
	// The fee comes on top of the amount, so a balance that covers the amount
	// alone is not enough.
	s := memory.New()
	user := seedUser(t, s, "exchange@example.com", "50.00", "0.00")
	seedActiveCard(t, s, user.ID)
	svc := newTestService(s)

	_, err := svc.Exchange(context.Background(), user.ID, decimal.NewFromInt(50), domain.CurrencyUSD, domain.CurrencyKES)
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := balance(t, s, user.ID, domain.CurrencyUSD); !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("USD balance = %s, want untouched 50", got)
	}
}

func TestExchangeDebitsCreditsAndJournals(t *testing.T) {
	s := memory.New()
	user := seedUser(t, s, "exchange@example.com", "100.00", "0.00")
	seedActiveCard(t, s, user.ID)
	svc := newTestService(s)

	result, err := svc.Exchange(context.Background(), user.ID, decimal.NewFromInt(50), domain.CurrencyUSD, domain.CurrencyKES)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}

	if !result.Fee.Equal(decimal.RequireFromString("0.75")) {
		t.Errorf("fee = %s, want 0.75", result.Fee)
	}
	if !result.ConvertedAmount.Equal(decimal.NewFromInt(6450)) {
		t.Errorf("converted = %s, want 6450", result.ConvertedAmount)
	}
	if got := balance(t, s, user.ID, domain.CurrencyUSD); !got.Equal(decimal.RequireFromString("49.25")) {
		t.Errorf("USD balance = %s, want 49.25", got)
	}
	if got := balance(t, s, user.ID, domain.CurrencyKES); !got.Equal(decimal.NewFromInt(6450)) {
		t.Errorf("KES balance = %s, want 6450", got)
	}

	txn := result.Transaction
	if txn.Type != domain.TypeExchange || txn.Status != domain.StatusCompleted {
		t.Errorf("journal row %s/%s, want exchange/completed", txn.Type, txn.Status)
	}
	if txn.ExchangeRate == nil || !txn.ExchangeRate.Equal(decimal.NewFromInt(129)) {
		t.Errorf("persisted rate = %v, want 129", txn.ExchangeRate)
	}
	if txn.Metadata[domain.MetaConvertedAmount] != "6450.00" {
		t.Errorf("converted metadata = %q", txn.Metadata[domain.MetaConvertedAmount])
	}
	if txn.Metadata[domain.MetaTargetCurrency] != string(domain.CurrencyKES) {
		t.Errorf("target currency metadata = %q", txn.Metadata[domain.MetaTargetCurrency])
	}
	if kinds := outboxKinds(t, s); kinds[outbox.KindExchangeCompleted] != 1 {
		t.Errorf("outbox kinds = %v, want one exchange.completed", kinds)
	}
}

func TestExchangeInsufficientRollsBackEverything(t *testing.T) {
	s := memory.New()
	// 100 USD cannot cover 100 + 1.50 fee.
	user := seedUser(t, s, "exchange@example.com", "100.00", "10.00")
	seedActiveCard(t, s, user.ID)
	svc := newTestService(s)

	_, err := svc.Exchange(context.Background(), user.ID, decimal.NewFromInt(100), domain.CurrencyUSD, domain.CurrencyKES)
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	if got := balance(t, s, user.ID, domain.CurrencyUSD); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("USD balance = %s, want untouched 100", got)
	}
	if got := balance(t, s, user.ID, domain.CurrencyKES); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("KES balance = %s, want untouched 10", got)
	}
	if n := journalCount(t, s, user.ID); n != 0 {
		t.Errorf("journal rows = %d, want 0", n)
	}
	if events := pendingOutbox(t, s); len(events) != 0 {
		t.Errorf("outbox events = %d, want 0", len(events))
	}
}

func TestExchangeValidation(t *testing.T) {
	s := memory.New()
	user := seedUser(t, s, "exchange@example.com", "100.00", "0.00")
	seedActiveCard(t, s, user.ID)
	svc := newTestService(s)
	ctx := context.Background()

	tests := []struct {
		name    string
		amount  decimal.Decimal
		from    domain.Currency
		to      domain.Currency
		wantErr error
	}{
		{"zero amount", decimal.Zero, domain.CurrencyUSD, domain.CurrencyKES, ErrInvalidAmount},
		{"negative amount", decimal.NewFromInt(-5), domain.CurrencyUSD, domain.CurrencyKES, ErrInvalidAmount},
		{"same currency", decimal.NewFromInt(5), domain.CurrencyUSD, domain.CurrencyUSD, ErrSameCurrency},
		{"unsupported currency", decimal.NewFromInt(5), "EUR", domain.CurrencyKES, ErrInvalidCurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Exchange(ctx, user.ID, tt.amount, tt.from, tt.to)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExchangeRequiresUsableCard(t *testing.T) {
	tests := []struct {
		name string
		seed func(t *testing.T, s store.Store, userID uint)
	}{
		{"no card", func(t *testing.T, s store.Store, userID uint) {}},
		{"expired card", func(t *testing.T, s store.Store, userID uint) {
			err := s.Cards().Create(context.Background(), &domain.VirtualCard{
				UserID: userID,
				Expiry: time.Now().AddDate(-1, 0, 0),
				Status: domain.CardExpired,
			})
			if err != nil {
				t.Fatal(err)
			}
		}},
		{"inactive card", func(t *testing.T, s store.Store, userID uint) {
			err := s.Cards().Create(context.Background(), &domain.VirtualCard{
				UserID: userID,
				Expiry: time.Now().AddDate(3, 0, 0),
				Status: domain.CardInactive,
			})
			if err != nil {
				t.Fatal(err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := memory.New()
			user := seedUser(t, s, "exchange@example.com", "100.00", "0.00")
			tt.seed(t, s, user.ID)
			svc := newTestService(s)
			_, err := svc.Exchange(context.Background(), user.ID, decimal.NewFromInt(10), domain.CurrencyUSD, domain.CurrencyKES)
			if !errors.Is(err, ErrNoCard) {
				t.Errorf("err = %v, want ErrNoCard", err)
			}
		})
	}
}

func TestExchangeFrozenCardStillGates(t *testing.T) {
	// A frozen card blocks spending but it is not terminal; exchange access
	// follows card ownership, not spendability.
	s := memory.New()
	user := seedUser(t, s, "exchange@example.com", "100.00", "0.00")
	err := s.Cards().Create(context.Background(), &domain.VirtualCard{
		UserID: user.ID,
		Expiry: time.Now().AddDate(3, 0, 0),
		Status: domain.CardFrozen,
	})
	if err != nil {
		t.Fatal(err)
	}
	svc := newTestService(s)
	if _, err := svc.Exchange(context.Background(), user.ID, decimal.NewFromInt(10), domain.CurrencyUSD, domain.CurrencyKES); err != nil {
		t.Errorf("exchange with frozen card: %v", err)
	}
}
