package auth

import (
	"testing"
	"time"
)

func TestJWTManager(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)

	t.Run("generate and validate round-trips", func(t *testing.T) {
		token, err := mgr.Generate("user-42")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		claims, err := mgr.Validate(token)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if claims.UserID != "user-42" {
			t.Errorf("UserID = %q, want user-42", claims.UserID)
		}
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		token, err := mgr.Generate("user-42")
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		other := NewJWTManager("other-secret", time.Hour)
		if _, err := other.Validate(token); err == nil {
			t.Error("Expected validation to fail with the wrong secret")
		}
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		if _, err := mgr.Validate("not.a.jwt"); err == nil {
			t.Error("Expected validation to fail")
		}
	})
}

func TestExpired(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Minute)
	token, err := mgr.Generate("user-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if Expired(token, time.Now()) {
		t.Error("Fresh token reported expired")
	}
	if !Expired(token, time.Now().Add(2*time.Minute)) {
		t.Error("Stale token not reported expired")
	}

	// Opaque tokens cannot be judged locally.
	if Expired("opaque-session-token", time.Now()) {
		t.Error("Opaque token reported expired")
	}
}
