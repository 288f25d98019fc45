package authjwt

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
)

const testSecret = "this-is-a-test-secret-that-is-at-least-32-characters-long"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	provider := NewProvider(testSecret)
	token := signToken(t, testSecret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "user-1",
		OrgID:  "org-1",
	})

	identity, err := provider.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if identity.UserID != "user-1" || identity.OrgID != "org-1" {
		t.Errorf("Verify() = %+v, want user-1/org-1", identity)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	provider := NewProvider(testSecret)
	token := signToken(t, testSecret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		UserID: "user-1",
		OrgID:  "org-1",
	})

	if _, err := provider.Verify(context.Background(), token); err != collaborators.ErrUnauthorized {
		t.Errorf("Verify() error = %v, want ErrUnauthorized", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	provider := NewProvider(testSecret)
	token := signToken(t, "a-completely-different-secret-that-is-long-enough", Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		UserID:           "user-1",
		OrgID:            "org-1",
	})

	if _, err := provider.Verify(context.Background(), token); err != collaborators.ErrUnauthorized {
		t.Errorf("Verify() error = %v, want ErrUnauthorized", err)
	}
}

func TestVerifyRejectsMissingClaims(t *testing.T) {
	provider := NewProvider(testSecret)
	token := signToken(t, testSecret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})

	if _, err := provider.Verify(context.Background(), token); err != collaborators.ErrUnauthorized {
		t.Errorf("Verify() error = %v, want ErrUnauthorized", err)
	}
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	provider := NewProvider(testSecret)
	if _, err := provider.Verify(context.Background(), ""); err != collaborators.ErrUnauthorized {
		t.Errorf("Verify() error = %v, want ErrUnauthorized", err)
	}
}
