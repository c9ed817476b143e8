package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	manager := NewAccessTokenManager([]byte("secret"), time.Hour)

	token, err := manager.Generate("alice", RoleStudent)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	claims, err := manager.Validate(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("expected subject alice, got %q", claims.Subject)
	}
	if claims.Role != RoleStudent {
		t.Fatalf("expected student role, got %q", claims.Role)
	}
}

func TestValidateRejectsWrongKey(t *testing.T) {
	manager := NewAccessTokenManager([]byte("secret"), time.Hour)
	other := NewAccessTokenManager([]byte("different"), time.Hour)

	token, err := manager.Generate("alice", RoleTeacher)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if _, err := other.Validate(token); err == nil {
		t.Fatal("expected validation to fail with a different key")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	manager := NewAccessTokenManager([]byte("secret"), -time.Minute)

	token, err := manager.Generate("alice", RoleStudent)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if _, err := manager.Validate(token); err == nil {
		t.Fatal("expected validation to fail for expired token")
	}
}
