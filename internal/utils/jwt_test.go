package utils

import (
	"testing"
)

func TestGenerateAndParseToken(t *testing.T) {
	SetJWTSecret("test-secret")

	token, err := GenerateToken("m1", "Alice", "admin", 1)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.MemberID != "m1" || claims.Name != "Alice" || claims.Role != "admin" {
		t.Errorf("claims = %s/%s/%s", claims.MemberID, claims.Name, claims.Role)
	}
	if claims.Subject != "m1" {
		t.Errorf("subject = %q, expected m1", claims.Subject)
	}
}

func TestParseToken_Invalid(t *testing.T) {
	SetJWTSecret("test-secret")
	if _, err := ParseToken("not-a-token"); err == nil {
		t.Error("garbage token should fail")
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	SetJWTSecret("secret-a")
	token, err := GenerateToken("m1", "Alice", "member", 1)
	if err != nil {
		t.Fatal(err)
	}
	SetJWTSecret("secret-b")
	if _, err := ParseToken(token); err == nil {
		t.Error("token signed with a different secret should fail")
	}
}

func TestGenerateToken_ExpiredRejected(t *testing.T) {
	SetJWTSecret("test-secret")
	// zero hours falls back to the 24h default, so the token is valid
	token, err := GenerateToken("m1", "Alice", "member", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseToken(token); err != nil {
		t.Errorf("default-expiry token should parse: %v", err)
	}
}
