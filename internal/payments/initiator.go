package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"sendpesa/internal/domain"
	"sendpesa/internal/journal"
	"sendpesa/internal/store"
	"sendpesa/internal/utils"
)

var ErrInvalidAmount = errors.New("amount must be positive")

// InitiateResult is returned to the caller that started a charge. The
// reference is the join key the reconciler will match the callback on.
type InitiateResult struct {
	Reference      string              `json:"reference"`
	ProviderStatus string              `json:"provider_status"`
	Transaction    *domain.Transaction `json:"transaction"`
}

// Initiator starts external charges. The pending journal row is persisted
// before the gateway is called, so a callback racing the initiating request
// always finds something to match.
type Initiator struct {
	store        store.Store
	gateway      Gateway
	cardPriceKES decimal.Decimal
}

// NewInitiator returns a payment initiator.
func NewInitiator(s store.Store, gateway Gateway, cardPriceKES decimal.Decimal) *Initiator {
	return &Initiator{store: s, gateway: gateway, cardPriceKES: cardPriceKES}
}

// InitiateDeposit starts an STK push that tops up the user's KES balance.
// The ledger is untouched until the callback confirms payment.
func (i *Initiator) InitiateDeposit(ctx context.Context, userID uint, amount decimal.Decimal, phone string) (*InitiateResult, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	user, err := i.store.Users().ByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if phone == "" {
		phone = user.Phone
	}
	normalized, err := utils.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	reference := "DEP-" + uuid.NewString()
	txn, err := journal.New(i.store).Append(ctx, &domain.Transaction{
		UserID:    userID,
		Type:      domain.TypeDeposit,
		Amount:    amount,
		Currency:  domain.CurrencyKES,
		Status:    domain.StatusPending,
		Reference: reference,
		Metadata:  domain.JSONMap{domain.MetaPhone: normalized},
	})
	if err != nil {
		return nil, err
	}
	return i.pushAndRecord(ctx, txn, STKRequest{
		Amount:      amount,
		Phone:       normalized,
		Reference:   reference,
		Description: "Wallet deposit",
	})
}

// InitiateCardPurchase starts an STK push that pays for a virtual card. The
// card itself is only materialized by the reconciler once the payment
// callback confirms; a user holding a usable or frozen card cannot buy
// another.
func (i *Initiator) InitiateCardPurchase(ctx context.Context, userID uint, phone string) (*InitiateResult, error) {
	user, err := i.store.Users().ByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	card, err := i.store.Cards().ByUser(ctx, userID)
	if err == nil && !card.Terminal() {
		return nil, ErrDuplicateCard
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if phone == "" {
		phone = user.Phone
	}
	normalized, err := utils.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	reference := "CARD-" + uuid.NewString()
	txn, err := journal.New(i.store).Append(ctx, &domain.Transaction{
		UserID:    userID,
		Type:      domain.TypeCardPurchase,
		Amount:    i.cardPriceKES,
		Currency:  domain.CurrencyKES,
		Status:    domain.StatusPending,
		Reference: reference,
		Metadata:  domain.JSONMap{domain.MetaPhone: normalized},
	})
	if err != nil {
		return nil, err
	}
	return i.pushAndRecord(ctx, txn, STKRequest{
		Amount:      i.cardPriceKES,
		Phone:       normalized,
		Reference:   reference,
		Description: "Virtual card purchase",
	})
}

// pushAndRecord calls the gateway and records the outcome on the pending
// row. Provider rejection fails the row and surfaces a typed error; the
// ledger is never touched here.
func (i *Initiator) pushAndRecord(ctx context.Context, txn *domain.Transaction, req STKRequest) (*InitiateResult, error) {
	resp, err := i.gateway.InitiateSTKPush(ctx, req)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id":   txn.UserID,
			"reference": txn.Reference,
			"type":      txn.Type,
			"error":     err.Error(),
		}).Error("Gateway initiation failed")
		if _, terr := journal.New(i.store).Transition(ctx, txn.ID, domain.StatusFailed, journal.Extra{
			Metadata: map[string]string{"gateway_error": err.Error()},
		}); terr != nil {
			logrus.WithField("transaction_id", txn.ID).Error("Failed to mark transaction failed")
		}
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"user_id":   txn.UserID,
		"reference": txn.Reference,
		"type":      txn.Type,
		"status":    resp.Status,
		"timestamp": time.Now().Format(time.RFC3339),
	}).Info("Gateway charge initiated")
	return &InitiateResult{
		Reference:      txn.Reference,
		ProviderStatus: resp.Status,
		Transaction:    txn,
	}, nil
}
