package auth

import (
	"testing"
)

func TestAccessToken_RoundTrip(t *testing.T) {
	secret := "test-secret"

	token, err := GenerateAccessToken("a1", "admin@example.com", true, secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseAccessToken(token, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "a1" {
		t.Fatalf("expected subject a1, got %s", claims.Subject)
	}
	if claims.Email != "admin@example.com" {
		t.Fatalf("expected email claim, got %s", claims.Email)
	}
	if !claims.SuperAdmin {
		t.Fatal("expected superAdmin claim")
	}
}

func TestParseAccessToken_WrongSecret(t *testing.T) {
	token, err := GenerateAccessToken("a1", "admin@example.com", false, "right")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseAccessToken(token, "wrong"); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestParseAccessToken_Garbage(t *testing.T) {
	if _, err := ParseAccessToken("not.a.token", "secret"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestGenerateRefreshToken_Unique(t *testing.T) {
	a := GenerateRefreshToken()
	b := GenerateRefreshToken()
	if a == "" || a == b {
		t.Fatalf("expected distinct non-empty tokens, got %q and %q", a, b)
	}
}

func TestPasswordHash_RoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !CheckPassword("s3cret", hash) {
		t.Fatal("expected correct password to verify")
	}
	if CheckPassword("wrong", hash) {
		t.Fatal("expected wrong password to fail")
	}
}
