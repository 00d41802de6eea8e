// Package wallet holds the money-movement engines: exchange, transfer,
// withdrawal approval and airtime. Every engine expresses its mutation as
// one atomic store unit: the balance updates and the journal rows commit or
// roll back together.
package wallet

import (
	"errors"

	"github.com/shopspring/decimal"

	"sendpesa/internal/rates"
	"sendpesa/internal/store"
)

var (
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidCurrency = errors.New("unsupported currency")
	ErrSameCurrency    = errors.New("source and target currency are the same")
	ErrSelfTransfer    = errors.New("cannot transfer to yourself")
	ErrNoCard          = errors.New("virtual card required")
	ErrNotWithdrawal   = errors.New("transaction is not a withdrawal request")
)

// exchangeFeeRate is the platform cut on currency exchange: 1.5% of the
// exchanged amount, charged on top in the source currency.
var exchangeFeeRate = decimal.RequireFromString("0.015")

// Service wires the engines to the store and the rate oracle.
type Service struct {
	store           store.Store
	oracle          rates.Oracle
	withdrawFeeRate decimal.Decimal
}

// New returns a wallet service. withdrawFeeRate is the fraction charged on
// withdrawal requests (zero disables the fee).
func New(s store.Store, oracle rates.Oracle, withdrawFeeRate decimal.Decimal) *Service {
	return &Service{store: s, oracle: oracle, withdrawFeeRate: withdrawFeeRate}
}
