package api

import (
	"errors"
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"github.com/gin-gonic/gin" // Gin web framework

	"sendpesa/internal/journal"
	"sendpesa/internal/payments"
	"sendpesa/internal/store"
	"sendpesa/internal/utils"
	"sendpesa/internal/wallet"
)

// currentUserID pulls the authenticated user id set by the JWT middleware.
func currentUserID(c *gin.Context) (uint, bool) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, false
	}
	return userID.(uint), true
}

// parsePagination reads page/page_size query params with the usual bounds.
func parsePagination(c *gin.Context) (page, pageSize, offset int) {
	page = 1      // Default page number
	pageSize = 20 // Default page size
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	return page, pageSize, (page - 1) * pageSize
}

// respondError maps a service error onto the endpoint contract: failures
// before any mutation are 4xx, provider trouble is 502, anything else 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, store.ErrInsufficientFunds):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient balance"})
	case errors.Is(err, store.ErrDuplicate):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Duplicate entry"})
	case errors.Is(err, wallet.ErrNoCard):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Virtual card required"})
	case errors.Is(err, payments.ErrDuplicateCard):
		c.JSON(http.StatusBadRequest, gin.H{"error": "You already own a virtual card"})
	case errors.Is(err, utils.ErrInvalidPhone):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number format"})
	case errors.Is(err, wallet.ErrInvalidAmount),
		errors.Is(err, payments.ErrInvalidAmount),
		errors.Is(err, wallet.ErrInvalidCurrency),
		errors.Is(err, wallet.ErrSameCurrency),
		errors.Is(err, wallet.ErrSelfTransfer),
		errors.Is(err, wallet.ErrNotWithdrawal):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, journal.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, payments.ErrCredentialsMissing),
		errors.Is(err, payments.ErrProviderError):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment provider unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
