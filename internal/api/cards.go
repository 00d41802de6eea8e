package api

import (
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework

	"sendpesa/internal/domain"
	"sendpesa/internal/payments"
	"sendpesa/internal/store"
)

// CardPaymentRequest starts the STK push that pays for a virtual card.
type CardPaymentRequest struct {
	Phone string `json:"phone"`
}

// InitializeCardPaymentHandler starts the card purchase charge
func InitializeCardPaymentHandler(initiator *payments.Initiator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req CardPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		result, err := initiator.InitiateCardPurchase(c.Request.Context(), userID, req.Phone)
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

// GetCardHandler returns the user's virtual card
func GetCardHandler(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		card, err := s.Cards().ByUser(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"card": card})
	}
}

// FreezeCardHandler suspends an active card
func FreezeCardHandler(s store.Store) gin.HandlerFunc {
	return setCardStatusHandler(s, domain.CardActive, domain.CardFrozen, "Card frozen")
}

// UnfreezeCardHandler reactivates a frozen card
func UnfreezeCardHandler(s store.Store) gin.HandlerFunc {
	return setCardStatusHandler(s, domain.CardFrozen, domain.CardActive, "Card unfrozen")
}

// setCardStatusHandler flips a card between active and frozen. Expired and
// inactive cards are terminal and stay that way.
func setCardStatusHandler(s store.Store, from, to domain.CardStatus, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		card, err := s.Cards().ByUser(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		if card.Status != from {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Card is " + string(card.Status)})
			return
		}
		card.Status = to
		if err := s.Cards().Update(c.Request.Context(), card); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": message, "card": card})
	}
}
