package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"sendpesa/internal/domain"
	"sendpesa/internal/store"
	"sendpesa/internal/store/memory"
	"sendpesa/internal/utils"
)

const testSecret = "test-secret"

// fakePending is an in-memory PendingStore.
type fakePending struct {
	m map[string]PendingLogin
}

func newFakePending() *fakePending {
	return &fakePending{m: map[string]PendingLogin{}}
}

func (f *fakePending) Get(ctx context.Context, key string, dest any) (bool, error) {
	val, ok := f.m[key]
	if !ok {
		return false, nil
	}
	*dest.(*PendingLogin) = val
	return true, nil
}

func (f *fakePending) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.m[key] = value.(PendingLogin)
	return nil
}

func (f *fakePending) Delete(ctx context.Context, key string) error {
	delete(f.m, key)
	return nil
}

func registerInput() RegisterInput {
	return RegisterInput{
		Email:     "User@Example.com",
		Password:  "correct-horse",
		Phone:     "0712345678",
		FirstName: "Jane",
		LastName:  "Doe",
		Country:   "KE",
	}
}

func TestRegister(t *testing.T) {
	s := memory.New()
	svc := New(s, newFakePending(), testSecret)
	ctx := context.Background()

	user, err := svc.Register(ctx, registerInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "user@example.com" {
		t.Errorf("email = %q, want lowercased", user.Email)
	}
	if user.Phone != "254712345678" {
		t.Errorf("phone = %q, want canonical form", user.Phone)
	}
	if user.Password == "correct-horse" || user.Password == "" {
		t.Error("password stored in the clear")
	}
	if !user.BalanceUSD.IsZero() || !user.BalanceKES.IsZero() {
		t.Error("new user must start with zero balances")
	}

	// Same email again, different case.
	in := registerInput()
	in.Email = "USER@example.COM"
	if _, err := svc.Register(ctx, in); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("duplicate register err = %v, want ErrDuplicate", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := New(memory.New(), newFakePending(), testSecret)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }},
		{"short password", func(in *RegisterInput) { in.Password = "short" }},
		{"overlong password", func(in *RegisterInput) { in.Password = strings.Repeat("x", 73) }},
		{"bad phone", func(in *RegisterInput) { in.Phone = "12345" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := registerInput()
			tt.mutate(&in)
			if _, err := svc.Register(ctx, in); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoginWithoutOTP(t *testing.T) {
	s := memory.New()
	svc := New(s, newFakePending(), testSecret)
	ctx := context.Background()

	registered, err := svc.Register(ctx, registerInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Registration stores OTPEnabled=false by default in the memory store.
	result, err := svc.Login(ctx, "user@example.com", "correct-horse", "203.0.113.9", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.RequiresOTP {
		t.Fatal("login challenged for OTP with the factor disabled")
	}
	if result.Token == "" {
		t.Fatal("no session token issued")
	}
	claims, err := utils.ParseJWT(result.Token, testSecret)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != registered.ID {
		t.Errorf("token user = %d, want %d", claims.UserID, registered.ID)
	}
	if claims.SessionID == "" {
		t.Error("token missing session id")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := memory.New()
	svc := New(s, newFakePending(), testSecret)
	ctx := context.Background()
	if _, err := svc.Register(ctx, registerInput()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "user@example.com", "wrong-horse"},
		{"unknown email", "ghost@example.com", "correct-horse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Both must collapse into the same error so callers cannot probe
			// which emails are registered.
			if _, err := svc.Login(ctx, tt.email, tt.password, "", ""); !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("err = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestSessionRegeneration(t *testing.T) {
	s := memory.New()
	svc := New(s, newFakePending(), testSecret)
	ctx := context.Background()
	if _, err := svc.Register(ctx, registerInput()); err != nil {
		t.Fatal(err)
	}

	first, err := svc.Login(ctx, "user@example.com", "correct-horse", "", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Login(ctx, "user@example.com", "correct-horse", "", "")
	if err != nil {
		t.Fatal(err)
	}
	c1, err := utils.ParseJWT(first.Token, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := utils.ParseJWT(second.Token, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	if c1.SessionID == c2.SessionID {
		t.Error("session id reused across logins")
	}
}

func seedOTPUser(t *testing.T, s store.Store) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	user := &domain.User{
		Email:      "user@example.com",
		Phone:      "254712345678",
		Password:   string(hash),
		OTPEnabled: true,
	}
	if err := s.Users().Create(context.Background(), user); err != nil {
		t.Fatal(err)
	}
	return user
}

func TestOTPChallengeAndVerify(t *testing.T) {
	s := memory.New()
	pending := newFakePending()
	svc := New(s, pending, testSecret)
	ctx := context.Background()
	user := seedOTPUser(t, s)

	result, err := svc.Login(ctx, "user@example.com", "correct-horse", "203.0.113.9", "Nairobi")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !result.RequiresOTP {
		t.Fatal("login did not challenge for OTP")
	}
	if result.Token != "" {
		t.Fatal("token issued before OTP verification")
	}
	record, ok := pending.m[otpKey("user@example.com")]
	if !ok {
		t.Fatal("no pending login recorded")
	}
	if record.UserID != user.ID {
		t.Errorf("pending user = %d, want %d", record.UserID, user.ID)
	}

	// Wrong code is rejected and the challenge survives for a retry.
	if _, err := svc.VerifyOTP(ctx, "user@example.com", "000000", ""); !errors.Is(err, ErrOTPRejected) {
		t.Fatalf("wrong code err = %v, want ErrOTPRejected", err)
	}
	if _, ok := pending.m[otpKey("user@example.com")]; !ok {
		t.Fatal("pending login deleted by a failed attempt")
	}

	verified, err := svc.VerifyOTP(ctx, "user@example.com", record.Code, "203.0.113.9")
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if verified.Token == "" {
		t.Fatal("no token after successful verification")
	}
	claims, err := utils.ParseJWT(verified.Token, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != user.ID {
		t.Errorf("token user = %d, want %d", claims.UserID, user.ID)
	}

	// The code is single use; replaying it finds no pending session.
	if _, err := svc.VerifyOTP(ctx, "user@example.com", record.Code, ""); !errors.Is(err, ErrNoPendingOTP) {
		t.Errorf("replay err = %v, want ErrNoPendingOTP", err)
	}
}

func TestVerifyOTPExpired(t *testing.T) {
	s := memory.New()
	pending := newFakePending()
	svc := New(s, pending, testSecret)
	ctx := context.Background()
	user := seedOTPUser(t, s)

	pending.m[otpKey("user@example.com")] = PendingLogin{
		UserID:    user.ID,
		Code:      "123456",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if _, err := svc.VerifyOTP(ctx, "user@example.com", "123456", ""); !errors.Is(err, ErrOTPRejected) {
		t.Fatalf("expired code err = %v, want ErrOTPRejected", err)
	}
	if _, ok := pending.m[otpKey("user@example.com")]; ok {
		t.Error("expired pending login not cleaned up")
	}
}

func TestVerifyOTPWithoutChallenge(t *testing.T) {
	svc := New(memory.New(), newFakePending(), testSecret)
	if _, err := svc.VerifyOTP(context.Background(), "ghost@example.com", "123456", ""); !errors.Is(err, ErrNoPendingOTP) {
		t.Errorf("err = %v, want ErrNoPendingOTP", err)
	}
}

func TestGenerateOTP(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code := generateOTP()
		if len(code) != 6 {
			t.Fatalf("code %q length = %d, want 6", code, len(code))
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("code %q contains non-digit", code)
			}
		}
		seen[code] = true
	}
	if len(seen) < 2 {
		t.Error("50 generated codes were all identical")
	}
}
