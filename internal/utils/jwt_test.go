package utils

import "testing"

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(42, "session-1", "secret")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	claims, err := ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("user id = %d, want 42", claims.UserID)
	}
	if claims.SessionID != "session-1" {
		t.Errorf("session id = %q, want session-1", claims.SessionID)
	}
}

func TestParseJWTRejectsWrongSecret(t *testing.T) {
	token, err := GenerateJWT(42, "session-1", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseJWT(token, "other-secret"); err == nil {
		t.Error("token accepted with the wrong secret")
	}
}

func TestParseJWTRejectsGarbage(t *testing.T) {
	if _, err := ParseJWT("not.a.token", "secret"); err == nil {
		t.Error("garbage token accepted")
	}
}
