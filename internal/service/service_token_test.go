package service

import (
	"errors"
	"testing"
	"time"
)

func TestServiceTokenRoundTrip(t *testing.T) {
	token, _, err := IssueServiceToken("secret", "lipa", 7, time.Hour)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	claims, err := ParseServiceToken("secret", "lipa", token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if claims.TenantID != 7 {
		t.Fatalf("tenant id want 7 got %d", claims.TenantID)
	}

	if _, err := ParseServiceToken("other", "lipa", token); !errors.Is(err, ErrServiceTokenInvalid) {
		t.Fatalf("wrong secret want invalid got %v", err)
	}
	if _, err := ParseServiceToken("secret", "someone-else", token); !errors.Is(err, ErrServiceTokenInvalid) {
		t.Fatalf("wrong issuer want invalid got %v", err)
	}
	if _, _, err := IssueServiceToken(" ", "", 0, time.Hour); err == nil {
		t.Fatalf("empty secret should fail")
	}
}
