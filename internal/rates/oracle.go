// Package rates resolves currency conversion rates. A live provider lookup
// is attempted first; any failure falls back to a fixed table. The oracle
// never returns an error: a stale rate is preferable to a failed exchange,
// and the chosen rate is always persisted on the transaction for audit.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"sendpesa/internal/domain"
)

// Oracle resolves a conversion rate between two wallet currencies.
type Oracle interface {
	Rate(ctx context.Context, from, to domain.Currency) decimal.Decimal
}

var usdToKES = decimal.NewFromInt(129)

// FallbackRate returns the fixed-table rate for a currency pair.
func FallbackRate(from, to domain.Currency) decimal.Decimal {
	switch {
	case from == to:
		return decimal.NewFromInt(1)
	case from == domain.CurrencyUSD && to == domain.CurrencyKES:
		return usdToKES
	case from == domain.CurrencyKES && to == domain.CurrencyUSD:
		return decimal.NewFromInt(1).DivRound(usdToKES, 8)
	}
	return decimal.NewFromInt(1)
}

// Client is the live-provider oracle.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient returns an oracle backed by the given provider. An empty baseURL
// or apiKey makes every lookup fall back immediately.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type rateResponse struct {
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Rate attempts the live lookup and falls back on any failure.
func (c *Client) Rate(ctx context.Context, from, to domain.Currency) decimal.Decimal {
	if from == to {
		return decimal.NewFromInt(1)
	}
	rate, err := c.liveRate(ctx, from, to)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"from":  from,
			"to":    to,
			"error": err.Error(),
		}).Warn("Rate lookup failed, using fallback table")
		return FallbackRate(from, to)
	}
	return rate
}

func (c *Client) liveRate(ctx context.Context, from, to domain.Currency) (decimal.Decimal, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return decimal.Zero, fmt.Errorf("rate provider credentials missing")
	}
	url := fmt.Sprintf("%s/latest?base=%s&symbols=%s&apikey=%s", c.baseURL, from, to, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate provider returned %d", resp.StatusCode)
	}
	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, err
	}
	rate, ok := body.Rates[string(to)]
	if !ok || rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("rate provider omitted %s", to)
	}
	return rate, nil
}

// Fixed is an oracle that always answers from the fallback table. Used in
// tests and when no provider is configured.
type Fixed struct{}

// Rate returns the fixed-table rate.
func (Fixed) Rate(ctx context.Context, from, to domain.Currency) decimal.Decimal {
	return FallbackRate(from, to)
}
