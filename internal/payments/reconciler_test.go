package payments

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"sendpesa/internal/domain"
	"sendpesa/internal/store"
	"sendpesa/internal/store/memory"
)

// fakeGateway scripts the provider's synchronous responses.
type fakeGateway struct {
	pushErr    error
	pushResp   STKResponse
	statusErr  error
	statusResp StatusResponse
	pushes     []STKRequest
}

func (f *fakeGateway) InitiateSTKPush(ctx context.Context, req STKRequest) (*STKResponse, error) {
	f.pushes = append(f.pushes, req)
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	resp := f.pushResp
	return &resp, nil
}

func (f *fakeGateway) TransactionStatus(ctx context.Context, reference string) (*StatusResponse, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	resp := f.statusResp
	resp.Reference = reference
	return &resp, nil
}

func seedUser(t *testing.T, s store.Store, email, phone string) *domain.User {
	t.Helper()
	user := &domain.User{Email: email, Phone: phone}
	if err := s.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedPending(t *testing.T, s store.Store, userID uint, typ domain.TransactionType, amount string, reference string) *domain.Transaction {
	t.Helper()
	txn := &domain.Transaction{
		UserID:    userID,
		Type:      typ,
		Amount:    decimal.RequireFromString(amount),
		Currency:  domain.CurrencyKES,
		Status:    domain.StatusPending,
		Reference: reference,
		Metadata:  domain.JSONMap{},
	}
	if err := s.Journal().Append(context.Background(), txn); err != nil {
		t.Fatalf("seed pending row: %v", err)
	}
	return txn
}

func kesBalance(t *testing.T, s store.Store, userID uint) decimal.Decimal {
	t.Helper()
	user, err := s.Users().ByID(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	return user.BalanceKES
}

func TestReconcileDepositCreditsOnce(t *testing.T) {
	s := memory.New()
	user := seedUser(t, s, "dep@example.com", "254712345678")
	seedPending(t, s, user.ID, domain.TypeDeposit, "500.00", "DEP-abc")
	r := NewReconciler(s, &fakeGateway{})
	ctx := context.Background()

	payload := CallbackPayload{ExternalReference: "DEP-abc", ResultCode: 0, Status: "Success", ProviderReference: "PH-1"}
	result, err := r.Reconcile(ctx, payload)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Outcome != OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", result.Outcome)
	}
	if result.Transaction.Status != domain.StatusCompleted {
		t.Errorf("row status = %s", result.Transaction.Status)
	}
	if result.Transaction.Metadata["provider_reference"] != "PH-1" {
		t.Errorf("provider reference not recorded: %v", result.Transaction.Metadata)
	}
	if got := kesBalance(t, s, user.ID); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("balance = %s, want 500", got)
	}

	// Providers re-deliver; the second callback must not credit again.
	again, err := r.Reconcile(ctx, payload)
	if err != nil {
		t.Fatalf("re-delivered Reconcile: %v", err)
	}
	if again.Outcome != OutcomeDuplicate {
		t.Errorf("outcome = %s, want duplicate", again.Outcome)
	}
	if got := kesBalance(t, s, user.ID); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("balance after re-delivery = %s, want still 500", got)
	}
}

func TestReconcileFailedCallback(t *testing.T) {
	s := memory.New()
	user := seedUser(t, s, "dep@example.com", "254712345678")
	seedPending(t, s, user.ID, domain.TypeDeposit, "500.00", "DEP-abc")
	r := NewReconciler(s, &fakeGateway{})

	result, err := r.Reconcile(context.Background(), CallbackPayload{
		ExternalReference: "DEP-abc", ResultCode: 1032, Status: "Cancelled",
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s, want failed", result.Outcome)
	}
	if result.Transaction.Metadata["provider_status"] != "Cancelled" {
		t.Errorf("metadata = %v", result.Transaction.Metadata)
	}
	if got := kesBalance(t, s, user.ID); !got.IsZero() {
		t.Errorf("balance = %s, want 0", got)
	}
}

func TestReconcilePhoneFallback(t *testing.T) {
	s := memory.New()
	user := seedUser(t, s, "dep@example.com", "254712345678")
	seedPending(t, s, user.ID, domain.TypeDeposit, "250.00", "DEP-lost-ref")
	r := NewReconciler(s, &fakeGateway{})

	// The provider drops the reference but echoes the payer's phone.
	result, err := r.Reconcile(context.Background(), CallbackPayload{
		ResultCode: 0, Status: "success", Phone: "0712345678",
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Outcome != OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", result.Outcome)
	}
	if got := kesBalance(t, s, user.ID); !got.Equal(decimal.NewFromInt(250)) {
		t.Errorf("balance = %s, want 250", got)
	}
}

func TestReconcileUnmatchedFailsOpen(t *testing.T) {
	s := memory.New()
	r := NewReconciler(s, &fakeGateway{})

	result, err := r.Reconcile(context.Background(), CallbackPayload{
		ExternalReference: "DEP-never-existed", ResultCode: 0, Status: "success",
	})
	if err != nil {
		t.Fatalf("unmatched callback must not error: %v", err)
	}
	if result.Outcome != OutcomeUnmatched {
		t.Errorf("outcome = %s, want unmatched", result.Outcome)
	}
}

func TestReconcileCardPurchaseMaterializesCard(t *testing.T) {
	s := memory.New()
	user := seedUser(t, s, "card@example.com", "254712345678")
	seedPending(t, s, user.ID, domain.TypeCardPurchase, "300.00", "CARD-abc")
	r := NewReconciler(s, &fakeGateway{})
	ctx := context.Background()

	result, err := r.Reconcile(ctx, CallbackPayload{
		ExternalReference: "CARD-abc", ResultCode: 0, Status: "success",
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if result.Outcome != OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", result.Outcome)
	}

	card, err := s.Cards().ByUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("card not created: %v", err)
	}
	if card.Status != domain.CardActive {
		t.Errorf("card status = %s, want active", card.Status)
	}
	reloaded, err := s.Users().ByID(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reloaded.HasCard {
		t.Error("HasCard flag not set")
	}
	// The card price went to the gateway, never through the wallet.
	if !reloaded.BalanceKES.IsZero() {
		t.Errorf("balance = %s, want 0", reloaded.BalanceKES)
	}
}

func TestVerifyDepositUsesGatewayStatus(t *testing.T) {
	s := memory.New()
	user := seedUser(t, s, "dep@example.com", "254712345678")
	seedPending(t, s, user.ID, domain.TypeDeposit, "500.00", "DEP-abc")
	gw := &fakeGateway{statusResp: StatusResponse{Status: "success", ResultCode: 0}}
	r := NewReconciler(s, gw)

	result, err := r.VerifyDeposit(context.Background(), user.ID, "DEP-abc")
	if err != nil {
		t.Fatalf("VerifyDeposit: %v", err)
	}
	if result.Outcome != OutcomeCompleted {
		t.Errorf("outcome = %s, want completed", result.Outcome)
	}
	if got := kesBalance(t, s, user.ID); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("balance = %s, want 500", got)
	}
}

func TestVerifyDepositPropagatesGatewayError(t *testing.T) {
	s := memory.New()
	user := seedUser(t, s, "dep@example.com", "254712345678")
	seedPending(t, s, user.ID, domain.TypeDeposit, "500.00", "DEP-abc")
	gw := &fakeGateway{statusErr: ErrProviderError}
	r := NewReconciler(s, gw)

	if _, err := r.VerifyDeposit(context.Background(), user.ID, "DEP-abc"); !errors.Is(err, ErrProviderError) {
		t.Errorf("err = %v, want ErrProviderError", err)
	}
}

func TestVerifyDepositRejectsForeignReference(t *testing.T) {
	s := memory.New()
	owner := seedUser(t, s, "owner@example.com", "254712345678")
	other := seedUser(t, s, "other@example.com", "254798765432")
	seedPending(t, s, owner.ID, domain.TypeDeposit, "500.00", "DEP-owned")
	gw := &fakeGateway{statusResp: StatusResponse{Status: "success", ResultCode: 0}}
	r := NewReconciler(s, gw)

	// Another user guessing the reference must not be able to finalize it.
	if _, err := r.VerifyDeposit(context.Background(), other.ID, "DEP-owned"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if got := kesBalance(t, s, owner.ID); !got.IsZero() {
		t.Errorf("owner balance = %s, want untouched 0", got)
	}
}

// gateStore holds reconcile calls at the transactional boundary so several
// copies of one callback can all pass the terminal fast path before any of
// them settles.
type gateStore struct {
	store.Store
	arrived chan struct{}
	release chan struct{}
}

func (g *gateStore) Atomic(ctx context.Context, fn func(store.Store) error) error {
	g.arrived <- struct{}{}
	<-g.release
	return g.Store.Atomic(ctx, fn)
}

func TestReconcileConcurrentRedeliveryCreditsOnce(t *testing.T) {
	s := memory.New()
	user := seedUser(t, s, "dep@example.com", "254712345678")
	seedPending(t, s, user.ID, domain.TypeDeposit, "500.00", "DEP-race")
	gate := &gateStore{Store: s, arrived: make(chan struct{}, 2), release: make(chan struct{})}
	r := NewReconciler(gate, &fakeGateway{})
	payload := CallbackPayload{ExternalReference: "DEP-race", ResultCode: 0, Status: "success"}

	outcomes := make(chan Outcome, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := r.Reconcile(context.Background(), payload)
			if err != nil {
				t.Errorf("Reconcile: %v", err)
				return
			}
			outcomes <- result.Outcome
		}()
	}
	<-gate.arrived
	<-gate.arrived
	close(gate.release)
	wg.Wait()
	close(outcomes)

	counts := map[Outcome]int{}
	for o := range outcomes {
		counts[o]++
	}
	if counts[OutcomeCompleted] != 1 || counts[OutcomeDuplicate] != 1 {
		t.Errorf("outcomes = %v, want one completed and one duplicate", counts)
	}
	if got := kesBalance(t, s, user.ID); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("balance = %s, want 500 credited exactly once", got)
	}
}

func TestReconcileConcurrentRedeliveryMintsOneCard(t *testing.T) {
	s := memory.New()
	user := seedUser(t, s, "card@example.com", "254712345678")
	seedPending(t, s, user.ID, domain.TypeCardPurchase, "300.00", "CARD-race")
	gate := &gateStore{Store: s, arrived: make(chan struct{}, 2), release: make(chan struct{})}
	r := NewReconciler(gate, &fakeGateway{})
	payload := CallbackPayload{ExternalReference: "CARD-race", ResultCode: 0, Status: "success"}

	outcomes := make(chan Outcome, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := r.Reconcile(context.Background(), payload)
			if err != nil {
				t.Errorf("Reconcile: %v", err)
				return
			}
			outcomes <- result.Outcome
		}()
	}
	<-gate.arrived
	<-gate.arrived
	close(gate.release)
	wg.Wait()
	close(outcomes)

	counts := map[Outcome]int{}
	for o := range outcomes {
		counts[o]++
	}
	if counts[OutcomeCompleted] != 1 || counts[OutcomeDuplicate] != 1 {
		t.Errorf("outcomes = %v, want one completed and one duplicate", counts)
	}
	card, err := s.Cards().ByUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("card not created: %v", err)
	}
	if card.Status != domain.CardActive {
		t.Errorf("card status = %s, want active", card.Status)
	}
}
