package api

import (
	"context"
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"

	"github.com/gin-gonic/gin" // Gin web framework
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"sendpesa/internal/domain"
	"sendpesa/internal/store"
	"sendpesa/internal/utils"
	"sendpesa/internal/wallet"
)

// ReviewWithdrawalRequest carries operator notes for approve/reject.
type ReviewWithdrawalRequest struct {
	Notes string `json:"notes"`
}

// AdjustBalanceRequest applies a signed delta to a user's balance.
type AdjustBalanceRequest struct {
	Currency domain.Currency `json:"currency" binding:"required"`
	Delta    decimal.Decimal `json:"delta" binding:"required"`
	Notes    string          `json:"notes"`
}

// ListUsersHandler returns a paginated user listing for operators
func ListUsersHandler(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize, offset := parsePagination(c)
		users, total, err := s.Users().List(c.Request.Context(), offset, pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"users":       users,
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": (int(total) + pageSize - 1) / pageSize,
		})
	}
}

// ListTransactionsHandler returns the filtered journal for operators
func ListTransactionsHandler(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize, offset := parsePagination(c)
		filter := store.TransactionFilter{
			Type:   domain.TransactionType(c.Query("type")),
			Status: domain.TransactionStatus(c.Query("status")),
			Offset: offset,
			Limit:  pageSize,
		}
		if uid := c.Query("user_id"); uid != "" {
			if v, err := strconv.ParseUint(uid, 10, 64); err == nil {
				id := uint(v)
				filter.UserID = &id
			}
		}
		if from := c.Query("from"); from != "" {
			if t, err := time.Parse(time.RFC3339, from); err == nil {
				filter.From = &t
			}
		}
		if to := c.Query("to"); to != "" {
			if t, err := time.Parse(time.RFC3339, to); err == nil {
				filter.To = &t
			}
		}
		txns, total, err := s.Journal().List(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"transactions": txns,
			"page":         page,
			"page_size":    pageSize,
			"total":        total,
			"total_pages":  (int(total) + pageSize - 1) / pageSize,
		})
	}
}

// ListWithdrawalsHandler returns pending withdrawals awaiting review
func ListWithdrawalsHandler(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize, offset := parsePagination(c)
		status := domain.TransactionStatus(c.DefaultQuery("status", string(domain.StatusPending)))
		txns, total, err := s.Journal().List(c.Request.Context(), store.TransactionFilter{
			Type:   domain.TypeWithdraw,
			Status: status,
			Offset: offset,
			Limit:  pageSize,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch withdrawals"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"withdrawals": txns,
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
		})
	}
}

// ApproveWithdrawalHandler debits the wallet and completes the request
func ApproveWithdrawalHandler(svc *wallet.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transaction id"})
			return
		}
		var req ReviewWithdrawalRequest
		_ = c.ShouldBindJSON(&req) // notes are optional
		txn, err := svc.ApproveWithdrawal(c.Request.Context(), uint(id), req.Notes)
		if err != nil {
			respondError(c, err)
			return
		}
		utils.InvalidateUserCaches(context.Background(), rdb, txn.UserID)
		c.JSON(http.StatusOK, gin.H{"message": "Withdrawal approved", "transaction": txn})
	}
}

// RejectWithdrawalHandler fails the request without touching the ledger
func RejectWithdrawalHandler(svc *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transaction id"})
			return
		}
		var req ReviewWithdrawalRequest
		_ = c.ShouldBindJSON(&req)
		txn, err := svc.RejectWithdrawal(c.Request.Context(), uint(id), req.Notes)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Withdrawal rejected", "transaction": txn})
	}
}

// AdjustBalanceHandler applies a signed administrative balance delta
func AdjustBalanceHandler(svc *wallet.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
			return
		}
		var req AdjustBalanceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		txn, err := svc.AdjustBalance(c.Request.Context(), uint(id), req.Currency, req.Delta, req.Notes)
		if err != nil {
			respondError(c, err)
			return
		}
		utils.InvalidateUserCaches(context.Background(), rdb, uint(id))
		c.JSON(http.StatusOK, gin.H{"message": "Balance adjusted", "transaction": txn})
	}
}
