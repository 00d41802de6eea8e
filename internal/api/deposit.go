package api

import (
	"context"
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"sendpesa/internal/payments"
	"sendpesa/internal/utils"
)

// DepositRequest starts a mobile-money deposit.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Phone  string          `json:"phone"`
}

// VerifyPaymentRequest polls the gateway for a deposit's state.
type VerifyPaymentRequest struct {
	Reference string `json:"reference" binding:"required"`
}

// InitializeDepositHandler starts an STK push for a wallet deposit
func InitializeDepositHandler(initiator *payments.Initiator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req DepositRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		result, err := initiator.InitiateDeposit(c.Request.Context(), userID, req.Amount, req.Phone)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":         "Payment prompt sent to your phone",
			"reference":       result.Reference,
			"provider_status": result.ProviderStatus,
		})
	}
}

// VerifyDepositHandler confirms a deposit against the gateway and finalizes
// it through the reconciler's idempotent path. The reconciler only accepts
// references owned by the caller, so one user cannot probe another's deposits
func VerifyDepositHandler(reconciler *payments.Reconciler, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req VerifyPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		result, err := reconciler.VerifyDeposit(c.Request.Context(), userID, req.Reference)
		if err != nil {
			respondError(c, err)
			return
		}
		switch result.Outcome {
		case payments.OutcomeCompleted, payments.OutcomeDuplicate:
			utils.InvalidateUserCaches(context.Background(), rdb, userID)
			c.JSON(http.StatusOK, gin.H{"message": "Deposit confirmed", "transaction": result.Transaction})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Provider verification failed"})
		}
	}
}
