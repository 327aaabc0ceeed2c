package auth

import (
	"strings"
	"testing"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword("s3cret", hash) {
		t.Fatal("correct password must verify")
	}
	if CheckPassword("wrong", hash) {
		t.Fatal("wrong password must not verify")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("user-1", []string{"admin"}, "secret")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseAccessToken(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("expected subject=user-1, got %s", claims.Subject)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "admin" {
		t.Fatalf("expected roles=[admin], got %v", claims.Roles)
	}

	if _, err := ParseAccessToken(token, "other-secret"); err == nil {
		t.Fatal("token must not parse with the wrong secret")
	}
	if _, err := ParseAccessToken(strings.Replace(token, ".", "x", 1), "secret"); err == nil {
		t.Fatal("mangled token must not parse")
	}
}

func TestExtractRoles(t *testing.T) {
	if got := extractRoles(`["admin","editor"]`); len(got) != 2 || got[0] != "admin" {
		t.Fatalf("unexpected roles: %v", got)
	}
	if got := extractRoles("not json"); len(got) != 0 {
		t.Fatalf("invalid JSON must yield no roles, got %v", got)
	}
	if got := extractRoles(nil); len(got) != 0 {
		t.Fatalf("nil must yield no roles, got %v", got)
	}
}

func TestIsActive(t *testing.T) {
	if !isActive(true) || isActive(false) {
		t.Fatal("bool handling wrong")
	}
	if !isActive(int64(1)) || isActive(int64(0)) {
		t.Fatal("sqlite integer handling wrong")
	}
	if isActive(nil) {
		t.Fatal("nil must read as inactive")
	}
}
