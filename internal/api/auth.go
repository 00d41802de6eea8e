package api

import (
	"errors"
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework

	"sendpesa/internal/auth"
	"sendpesa/internal/metrics"
	"sendpesa/internal/store"
)

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Phone     string `json:"phone" binding:"required"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Country   string `json:"country"`
}

// LoginRequest is the password-login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// VerifyOTPRequest is the second-factor payload.
type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// RegisterHandler creates a new user with zero balances
func RegisterHandler(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		user, err := svc.Register(c.Request.Context(), auth.RegisterInput{
			Email:     req.Email,
			Password:  req.Password,
			Phone:     req.Phone,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Country:   req.Country,
		})
		if err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user": user})
	}
}

// LoginHandler verifies the password and either challenges for an OTP or
// establishes the session directly.
func LoginHandler(svc *auth.Service, m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		result, err := svc.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP(), c.GetHeader("X-Login-Location"))
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
			return
		}
		if result.RequiresOTP {
			c.JSON(http.StatusOK, gin.H{"requires_otp": true})
			return
		}
		m.LoginsTotal.Inc()
		c.JSON(http.StatusOK, gin.H{"requires_otp": false, "token": result.Token, "user": result.User})
	}
}

// VerifyOTPHandler exchanges a pending login plus a valid code for a
// session. Wrong, expired and missing all answer with the same message.
func VerifyOTPHandler(svc *auth.Service, m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyOTPRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		result, err := svc.VerifyOTP(c.Request.Context(), req.Email, req.Code, c.ClientIP())
		if err != nil {
			m.OTPRejections.Inc()
			if errors.Is(err, auth.ErrNoPendingOTP) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired verification code"})
				return
			}
			if errors.Is(err, auth.ErrOTPRejected) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired verification code"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification failed"})
			return
		}
		m.LoginsTotal.Inc()
		c.JSON(http.StatusOK, gin.H{"token": result.Token, "user": result.User})
	}
}
