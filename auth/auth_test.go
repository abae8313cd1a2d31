package auth

import (
	"testing"
	"time"

	"github.com/sharedcode/xfer"
)

func TestMintAndVerify(t *testing.T) {
	token, err := Mint("secret", "alice", time.Minute)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	v := NewVerifier("secret")
	if err := v.Verify(token); err != nil {
		t.Errorf("valid token rejected: %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := Mint("secret", "alice", time.Minute)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	err = NewVerifier("other-secret").Verify(token)
	if xfer.CodeOf(err) != xfer.AuthError {
		t.Errorf("expected AuthError, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	token, err := Mint("secret", "alice", -time.Minute)
	if err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	err = NewVerifier("secret").Verify(token)
	if xfer.CodeOf(err) != xfer.AuthError {
		t.Errorf("expected AuthError for expired token, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	err := NewVerifier("secret").Verify("not.a.jwt")
	if xfer.CodeOf(err) != xfer.AuthError {
		t.Errorf("expected AuthError, got %v", err)
	}
}
