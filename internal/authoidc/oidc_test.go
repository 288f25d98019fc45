package authoidc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
)

type fakeToken struct {
	sub   string
	orgID string
}

func (f fakeToken) Claims(v any) error {
	data, err := json.Marshal(claims{Sub: f.sub, OrgID: f.orgID})
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

type fakeVerifier struct {
	token fakeToken
	err   error
}

func (f *fakeVerifier) Verify(_ context.Context, rawIDToken string) (verifiedToken, error) {
	if rawIDToken == "" {
		return nil, errors.New("empty token")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

func TestVerifyAcceptsValidIDToken(t *testing.T) {
	provider := NewProviderWithVerifier(&fakeVerifier{token: fakeToken{sub: "user-1", orgID: "org-1"}})

	identity, err := provider.Verify(context.Background(), "raw-id-token")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if identity.UserID != "user-1" || identity.OrgID != "org-1" {
		t.Errorf("Verify() = %+v, want user-1/org-1", identity)
	}
}

func TestVerifyRejectsUpstreamFailure(t *testing.T) {
	provider := NewProviderWithVerifier(&fakeVerifier{err: errors.New("signature invalid")})

	if _, err := provider.Verify(context.Background(), "raw-id-token"); err != collaborators.ErrUnauthorized {
		t.Errorf("Verify() error = %v, want ErrUnauthorized", err)
	}
}

func TestVerifyRejectsMissingClaims(t *testing.T) {
	provider := NewProviderWithVerifier(&fakeVerifier{token: fakeToken{}})

	if _, err := provider.Verify(context.Background(), "raw-id-token"); err != collaborators.ErrUnauthorized {
		t.Errorf("Verify() error = %v, want ErrUnauthorized", err)
	}
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	provider := NewProviderWithVerifier(&fakeVerifier{token: fakeToken{sub: "user-1", orgID: "org-1"}})

	if _, err := provider.Verify(context.Background(), ""); err != collaborators.ErrUnauthorized {
		t.Errorf("Verify() error = %v, want ErrUnauthorized", err)
	}
}
