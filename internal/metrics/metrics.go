// Package metrics exposes the Prometheus instrumentation for the wallet.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the wallet's Prometheus instruments on a private registry.
type Collector struct {
	registry          *prometheus.Registry
	TransactionsTotal *prometheus.CounterVec
	CallbacksTotal    *prometheus.CounterVec
	OTPRejections     prometheus.Counter
	LoginsTotal       prometheus.Counter
}

// NewCollector builds the registry and instruments.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	return &Collector{
		registry: registry,
		TransactionsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_transactions_total",
			Help: "Money-movement operations by type and outcome",
		}, []string{"type", "outcome"}),
		CallbacksTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_payment_callbacks_total",
			Help: "Payment provider callbacks by reconcile outcome",
		}, []string{"outcome"}),
		OTPRejections: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "wallet_otp_rejections_total",
			Help: "Rejected OTP verification attempts",
		}),
		LoginsTotal: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "wallet_logins_total",
			Help: "Successfully established sessions",
		}),
	}
}

// Handler serves the registry for scraping.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
