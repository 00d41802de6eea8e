package api

import (
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework
	"github.com/sirupsen/logrus"

	"sendpesa/internal/metrics"
	"sendpesa/internal/payments"
)

// PayHeroCallbackHandler receives asynchronous payment notifications. The
// provider is the caller here, not the user: the handler acknowledges with
// 200 no matter what, because anything else just triggers endless provider
// retries. Outcomes are logged and counted, never surfaced.
func PayHeroCallbackHandler(reconciler *payments.Reconciler, m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload payments.CallbackPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			logrus.WithField("error", err.Error()).Warn("Malformed provider callback")
			m.CallbacksTotal.WithLabelValues("malformed").Inc()
			c.JSON(http.StatusOK, gin.H{"message": "received"})
			return
		}
		result, err := reconciler.Reconcile(c.Request.Context(), payload)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"external_reference": payload.ExternalReference,
				"error":              err.Error(),
			}).Error("Callback reconciliation failed")
			m.CallbacksTotal.WithLabelValues("error").Inc()
			c.JSON(http.StatusOK, gin.H{"message": "received"})
			return
		}
		m.CallbacksTotal.WithLabelValues(string(result.Outcome)).Inc()
		c.JSON(http.StatusOK, gin.H{"message": "received", "outcome": result.Outcome})
	}
}
