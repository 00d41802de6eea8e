// Package auth implements registration, password login and the OTP gate in
// front of session establishment. The pending-login record lives server-side
// in Redis under a 10 minute TTL; the client never resubmits anything but
// the code itself.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"sendpesa/internal/domain"
	"sendpesa/internal/outbox"
	"sendpesa/internal/store"
	"sendpesa/internal/utils"
)

const otpTTL = 10 * time.Minute

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrOTPRejected deliberately covers wrong, expired and already-used
	// codes; the caller must not learn which.
	ErrOTPRejected  = errors.New("invalid or expired verification code")
	ErrNoPendingOTP = errors.New("no pending login session")
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// PendingLogin is the server-side state between password verification and
// OTP verification.
type PendingLogin struct {
	UserID    uint      `json:"user_id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	IP        string    `json:"ip"`
	Location  string    `json:"location"`
}

// PendingStore holds pending-login records between the password step and the
// OTP step. Backed by Redis in production.
type PendingStore interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type redisPendingStore struct {
	rdb *redis.Client
}

// NewRedisPendingStore backs the pending-login store with Redis; the record's
// TTL doubles as its expiry.
func NewRedisPendingStore(rdb *redis.Client) PendingStore {
	return &redisPendingStore{rdb: rdb}
}

func (r *redisPendingStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	return utils.GetCache(ctx, r.rdb, key, dest)
}

func (r *redisPendingStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return utils.SetCache(ctx, r.rdb, key, value, ttl)
}

func (r *redisPendingStore) Delete(ctx context.Context, key string) error {
	return utils.DeleteCache(ctx, r.rdb, key)
}

// Service implements the authenticator.
type Service struct {
	store     store.Store
	pending   PendingStore
	jwtSecret string
}

// New returns an auth service.
func New(s store.Store, pending PendingStore, jwtSecret string) *Service {
	return &Service{store: s, pending: pending, jwtSecret: jwtSecret}
}

// RegisterInput is the validated registration command.
type RegisterInput struct {
	Email     string
	Password  string
	Phone     string
	FirstName string
	LastName  string
	Country   string
}

// Register creates a user with zero balances.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !emailPattern.MatchString(email) {
		return nil, errors.New("invalid email address")
	}
	if len(in.Password) < 8 || len(in.Password) > 72 {
		return nil, errors.New("password must be 8-72 characters")
	}
	phone, err := utils.NormalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Email:     email,
		Phone:     phone,
		Password:  string(hash),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Country:   strings.TrimSpace(in.Country),
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// LoginResult is either an established session or an OTP challenge.
type LoginResult struct {
	RequiresOTP bool         `json:"requires_otp"`
	Token       string       `json:"token,omitempty"`
	User        *domain.User `json:"user,omitempty"`
}

// Login verifies the password. With OTP enabled it parks a PendingLogin in
// Redis and challenges the caller; otherwise it establishes the session
// directly.
func (s *Service) Login(ctx context.Context, email, password, ip, location string) (*LoginResult, error) {
	user, err := s.store.Users().ByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.OTPEnabled {
		token, err := s.issueSession(user.ID)
		if err != nil {
			return nil, err
		}
		return &LoginResult{Token: token, User: user}, nil
	}

	pending := PendingLogin{
		UserID:    user.ID,
		Code:      generateOTP(),
		ExpiresAt: time.Now().Add(otpTTL),
		IP:        ip,
		Location:  location,
	}
	if err := s.pending.Set(ctx, otpKey(user.Email), pending, otpTTL); err != nil {
		return nil, err
	}
	// Delivery goes through the outbox; a dead SMS provider must not block
	// the login flow.
	if err := outbox.Enqueue(ctx, s.store, outbox.KindLoginOTP, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
		"phone":   user.Phone,
		"code":    pending.Code,
	}); err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": user.ID,
			"error":   err.Error(),
		}).Error("Failed to enqueue OTP notification")
	}
	return &LoginResult{RequiresOTP: true}, nil
}

// VerifyOTP checks the code against the pending login. Wrong code, expired
// code and missing session all collapse into the same generic rejection; a
// verified code is deleted before the session is issued so it can never be
// replayed.
func (s *Service) VerifyOTP(ctx context.Context, email, code, ip string) (*LoginResult, error) {
	key := otpKey(strings.ToLower(strings.TrimSpace(email)))
	var pending PendingLogin
	found, err := s.pending.Get(ctx, key, &pending)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoPendingOTP
	}
	if time.Now().After(pending.ExpiresAt) {
		_ = s.pending.Delete(ctx, key)
		return nil, ErrOTPRejected
	}
	if subtle.ConstantTimeCompare([]byte(pending.Code), []byte(code)) != 1 {
		return nil, ErrOTPRejected
	}
	// Single use: the record is gone before the session exists.
	if err := s.pending.Delete(ctx, key); err != nil {
		return nil, err
	}
	user, err := s.store.Users().ByID(ctx, pending.UserID)
	if err != nil {
		return nil, err
	}
	token, err := s.issueSession(user.ID)
	if err != nil {
		return nil, err
	}
	if err := outbox.Enqueue(ctx, s.store, outbox.KindLoginAlert, map[string]any{
		"user_id":  user.ID,
		"email":    user.Email,
		"ip":       firstNonEmpty(ip, pending.IP),
		"location": pending.Location,
		"at":       time.Now().UTC(),
	}); err != nil {
		// Alerting is best effort; the login already succeeded.
		logrus.WithFields(logrus.Fields{
			"user_id": user.ID,
			"error":   err.Error(),
		}).Warn("Failed to enqueue login alert")
	}
	return &LoginResult{Token: token, User: user}, nil
}

// issueSession mints a fresh token with a new session id, which is what
// regenerates the session after OTP verification.
func (s *Service) issueSession(userID uint) (string, error) {
	return utils.GenerateJWT(userID, uuid.NewString(), s.jwtSecret)
}

func otpKey(email string) string {
	return "otp:pending:" + email
}

func generateOTP() string {
	code := make([]byte, 6)
	for i := range code {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			code[i] = '0'
			continue
		}
		code[i] = byte('0' + d.Int64())
	}
	return string(code)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
