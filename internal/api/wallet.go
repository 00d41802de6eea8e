package api

import (
	"context"  // Context for Redis operations
	"net/http" // HTTP status codes
	"time"     // Time durations

	"github.com/gin-gonic/gin" // Gin web framework
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"sendpesa/internal/domain"
	"sendpesa/internal/metrics"
	"sendpesa/internal/rates"
	"sendpesa/internal/store"
	"sendpesa/internal/utils"
	"sendpesa/internal/wallet"
)

// TransferRequest moves funds to another platform user.
type TransferRequest struct {
	RecipientEmail string          `json:"recipient_email" binding:"required"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	Currency       domain.Currency `json:"currency" binding:"required"`
}

// ExchangeRequest converts between the user's own balances.
type ExchangeRequest struct {
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	FromCurrency domain.Currency `json:"from_currency" binding:"required"`
	ToCurrency   domain.Currency `json:"to_currency" binding:"required"`
}

// WithdrawRequest opens a withdrawal for admin review.
type WithdrawRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Currency    domain.Currency `json:"currency" binding:"required"`
	Destination string          `json:"destination" binding:"required"`
}

// AirtimeRequest buys airtime from the KES balance.
type AirtimeRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Phone  string          `json:"phone" binding:"required"`
}

// walletView is the cached shape returned by GetWalletHandler.
type walletView struct {
	UserID     uint            `json:"user_id"`
	BalanceUSD decimal.Decimal `json:"balance_usd"`
	BalanceKES decimal.Decimal `json:"balance_kes"`
	HasCard    bool            `json:"has_card"`
}

// GetWalletHandler returns the balances for the authenticated user
func GetWalletHandler(s store.Store, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		ctx := context.Background() // Use background context for Redis
		cacheKey := utils.WalletCacheKey(userID)
		var view walletView
		found, err := utils.GetCache(ctx, rdb, cacheKey, &view)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"wallet": view, "cached": true})
			return
		}
		user, err := s.Users().ByID(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		view = walletView{
			UserID:     user.ID,
			BalanceUSD: user.BalanceUSD,
			BalanceKES: user.BalanceKES,
			HasCard:    user.HasCard,
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, view, 60*time.Second) // Cache for 60 seconds
		c.JSON(http.StatusOK, gin.H{"wallet": view, "cached": false})
	}
}

// TransferHandler moves funds to another platform user
func TransferHandler(svc *wallet.Service, s store.Store, rdb *redis.Client, m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		recipient, err := s.Users().ByEmail(c.Request.Context(), req.RecipientEmail)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Recipient not found"})
			return
		}
		result, err := svc.Transfer(c.Request.Context(), userID, recipient.ID, req.Amount, req.Currency)
		if err != nil {
			m.TransactionsTotal.WithLabelValues(string(domain.TypeSend), "failed").Inc()
			respondError(c, err)
			return
		}
		m.TransactionsTotal.WithLabelValues(string(domain.TypeSend), "completed").Inc()
		// Invalidate wallet and transaction history cache for both users
		ctx := context.Background()
		utils.InvalidateUserCaches(ctx, rdb, userID)
		utils.InvalidateUserCaches(ctx, rdb, recipient.ID)
		c.JSON(http.StatusOK, gin.H{
			"message":             "Transfer successful",
			"send_transaction":    result.SendTxn,
			"receive_transaction": result.ReceiveTxn,
		})
	}
}

// ExchangeHandler converts between the user's balances
func ExchangeHandler(svc *wallet.Service, rdb *redis.Client, m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req ExchangeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		result, err := svc.Exchange(c.Request.Context(), userID, req.Amount, req.FromCurrency, req.ToCurrency)
		if err != nil {
			m.TransactionsTotal.WithLabelValues(string(domain.TypeExchange), "failed").Inc()
			respondError(c, err)
			return
		}
		m.TransactionsTotal.WithLabelValues(string(domain.TypeExchange), "completed").Inc()
		utils.InvalidateUserCaches(context.Background(), rdb, userID)
		c.JSON(http.StatusOK, gin.H{
			"converted_amount": result.ConvertedAmount,
			"fee":              result.Fee,
			"rate":             result.Rate,
			"transaction":      result.Transaction,
		})
	}
}

// RateHandler quotes the current conversion rate without converting
func RateHandler(oracle rates.Oracle) gin.HandlerFunc {
	return func(c *gin.Context) {
		from := domain.Currency(c.DefaultQuery("from", string(domain.CurrencyUSD)))
		to := domain.Currency(c.DefaultQuery("to", string(domain.CurrencyKES)))
		if !from.Valid() || !to.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported currency"})
			return
		}
		rate := oracle.Rate(c.Request.Context(), from, to)
		c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "rate": rate})
	}
}

// WithdrawHandler opens a withdrawal request for admin review
func WithdrawHandler(svc *wallet.Service, m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req WithdrawRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		txn, err := svc.RequestWithdrawal(c.Request.Context(), userID, req.Amount, req.Currency, req.Destination)
		if err != nil {
			m.TransactionsTotal.WithLabelValues(string(domain.TypeWithdraw), "rejected").Inc()
			respondError(c, err)
			return
		}
		m.TransactionsTotal.WithLabelValues(string(domain.TypeWithdraw), "pending").Inc()
		c.JSON(http.StatusOK, gin.H{"message": "Withdrawal request submitted", "transaction": txn})
	}
}

// AirtimeHandler buys airtime from the KES balance
func AirtimeHandler(svc *wallet.Service, rdb *redis.Client, m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req AirtimeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		txn, err := svc.BuyAirtime(c.Request.Context(), userID, req.Amount, req.Phone)
		if err != nil {
			m.TransactionsTotal.WithLabelValues(string(domain.TypeAirtime), "failed").Inc()
			respondError(c, err)
			return
		}
		m.TransactionsTotal.WithLabelValues(string(domain.TypeAirtime), "completed").Inc()
		utils.InvalidateUserCaches(context.Background(), rdb, userID)
		c.JSON(http.StatusOK, gin.H{"message": "Airtime purchase successful", "transaction": txn})
	}
}

// GetTransactionHistoryHandler returns the user's paginated journal slice
func GetTransactionHistoryHandler(s store.Store, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		page, pageSize, offset := parsePagination(c)
		cacheKey := utils.TxHistoryCacheKey(userID, page, pageSize)
		ctx := context.Background()
		var cached struct {
			Transactions []domain.Transaction `json:"transactions"`
			Page         int                  `json:"page"`
			PageSize     int                  `json:"page_size"`
			Total        int64                `json:"total"`
			TotalPages   int                  `json:"total_pages"`
		}
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"transactions": cached.Transactions,
				"page":         cached.Page,
				"page_size":    cached.PageSize,
				"total":        cached.Total,
				"total_pages":  cached.TotalPages,
				"cached":       true,
			})
			return
		}
		txns, total, err := s.Journal().ListByUser(c.Request.Context(), userID, offset, pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		totalPages := (int(total) + pageSize - 1) / pageSize
		resp := gin.H{
			"transactions": txns,
			"page":         page,
			"page_size":    pageSize,
			"total":        total,
			"total_pages":  totalPages,
			"cached":       false,
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second) // Cache for 60 seconds
		c.JSON(http.StatusOK, resp)
	}
}
