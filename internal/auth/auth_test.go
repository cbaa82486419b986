package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fms/internal/apperr"
	"fms/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour, []string{"admin", "manager"})

	raw, exp, err := tokens.Issue(models.User{ID: 42, Username: "maria", Role: "manager"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expiry %s is not in the future", exp)
	}

	actor, err := tokens.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if actor.UserID != 42 || actor.Username != "maria" || !actor.CanApprove {
		t.Errorf("unexpected actor %+v", actor)
	}
}

func TestTokenRoleWithoutApproval(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour, []string{"admin"})
	raw, _, err := tokens.Issue(models.User{ID: 3, Username: "sam", Role: "storekeeper"})
	if err != nil {
		t.Fatal(err)
	}
	actor, err := tokens.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if actor.CanApprove {
		t.Error("storekeeper should not be able to approve")
	}
	if err := RequireApproval(actor, ActionApproveRequisition); !apperr.IsPermission(err) {
		t.Errorf("expected permission error, got %v", err)
	}
}

func TestTokenRejectsTamperedAndForeign(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour, nil)
	raw, _, _ := tokens.Issue(models.User{ID: 1, Username: "a", Role: "user"})

	other := NewTokens("other-secret", time.Hour, nil)
	if _, err := other.Parse(raw); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for wrong secret, got %v", err)
	}

	parts := strings.Split(raw, ".")
	parts[1] = parts[1] + "x"
	if _, err := tokens.Parse(strings.Join(parts, ".")); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for tampered token, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Username: "a"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := tokens.Parse(unsigned); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for alg none, got %v", err)
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("changeme")
	if err != nil {
		t.Fatal(err)
	}
	if hash == "changeme" || !strings.HasPrefix(hash, "$2") {
		t.Errorf("unexpected hash %q", hash)
	}
}
