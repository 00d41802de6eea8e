package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"sendpesa/internal/domain"
)

func TestFallbackRate(t *testing.T) {
	tests := []struct {
		name string
		from domain.Currency
		to   domain.Currency
		want decimal.Decimal
	}{
		{"same currency", domain.CurrencyUSD, domain.CurrencyUSD, decimal.NewFromInt(1)},
		{"usd to kes", domain.CurrencyUSD, domain.CurrencyKES, decimal.NewFromInt(129)},
		{"kes to usd", domain.CurrencyKES, domain.CurrencyUSD, decimal.NewFromInt(1).DivRound(decimal.NewFromInt(129), 8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FallbackRate(tt.from, tt.to); !got.Equal(tt.want) {
				t.Errorf("FallbackRate(%s, %s) = %s, want %s", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestClientLiveRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("base") != "USD" || r.URL.Query().Get("symbols") != "KES" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"rates":{"KES":"131.25"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	rate := c.Rate(context.Background(), domain.CurrencyUSD, domain.CurrencyKES)
	if !rate.Equal(decimal.RequireFromString("131.25")) {
		t.Errorf("rate = %s, want 131.25", rate)
	}
}

func TestClientFallsBackOnProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	rate := c.Rate(context.Background(), domain.CurrencyUSD, domain.CurrencyKES)
	if !rate.Equal(decimal.NewFromInt(129)) {
		t.Errorf("rate = %s, want fallback 129", rate)
	}
}

func TestClientFallsBackOnOmittedSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	rate := c.Rate(context.Background(), domain.CurrencyKES, domain.CurrencyUSD)
	if !rate.Equal(FallbackRate(domain.CurrencyKES, domain.CurrencyUSD)) {
		t.Errorf("rate = %s, want fallback", rate)
	}
}

func TestClientWithoutCredentialsFallsBack(t *testing.T) {
	c := NewClient("", "")
	rate := c.Rate(context.Background(), domain.CurrencyUSD, domain.CurrencyKES)
	if !rate.Equal(decimal.NewFromInt(129)) {
		t.Errorf("rate = %s, want 129", rate)
	}
}

func TestClientSameCurrencyShortCircuits(t *testing.T) {
	// No server at all: a same-currency quote must not hit the network.
	c := NewClient("http://127.0.0.1:0", "key")
	rate := c.Rate(context.Background(), domain.CurrencyKES, domain.CurrencyKES)
	if !rate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("rate = %s, want 1", rate)
	}
}
