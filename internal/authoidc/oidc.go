// Package authoidc implements the bearer-token Auth collaborator by verifying
// ID tokens issued directly by an upstream OpenID Connect provider (Auth0,
// Keycloak, Entra ID, Okta, ...), as an alternative to the gateway's own
// HS256 tokens in internal/authjwt. It only verifies; it does not run the
// authorization-code flow, issue local tokens, or manage user records — that
// belongs to whichever part of the platform terminates the OIDC login.
package authoidc

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
)

// claims is the shape the gateway expects in an upstream ID token.
type claims struct {
	Sub   string `json:"sub"`
	OrgID string `json:"org_id"`
}

// verifiedToken is the subset of *oidc.IDToken that Provider needs, narrowed
// so tests can substitute a token that was never actually signed.
type verifiedToken interface {
	Claims(v any) error
}

// idTokenVerifier is the subset of *oidc.IDTokenVerifier that Provider needs.
type idTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (verifiedToken, error)
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func (v *oidcVerifier) Verify(ctx context.Context, rawIDToken string) (verifiedToken, error) {
	return v.verifier.Verify(ctx, rawIDToken)
}

// Provider implements collaborators.Auth by verifying bearer tokens as OIDC
// ID tokens against an upstream issuer's published keys.
type Provider struct {
	verifier idTokenVerifier
}

// NewProvider fetches the issuer's discovery document and constructs a
// Provider that verifies ID tokens against it.
func NewProvider(ctx context.Context, issuer, clientID string) (*Provider, error) {
	upstream, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("authoidc: discover issuer %s: %w", issuer, err)
	}
	verifier := upstream.Verifier(&oidc.Config{ClientID: clientID})
	return &Provider{verifier: &oidcVerifier{verifier: verifier}}, nil
}

// NewProviderWithVerifier constructs a Provider over an injected verifier,
// for testing.
func NewProviderWithVerifier(verifier idTokenVerifier) *Provider {
	return &Provider{verifier: verifier}
}

func (p *Provider) Verify(ctx context.Context, token string) (*collaborators.Identity, error) {
	if token == "" {
		return nil, collaborators.ErrUnauthorized
	}

	idToken, err := p.verifier.Verify(ctx, token)
	if err != nil {
		return nil, collaborators.ErrUnauthorized
	}

	var c claims
	if err := idToken.Claims(&c); err != nil {
		return nil, collaborators.ErrUnauthorized
	}
	if c.Sub == "" || c.OrgID == "" {
		return nil, collaborators.ErrUnauthorized
	}

	return &collaborators.Identity{UserID: c.Sub, OrgID: c.OrgID}, nil
}

var _ collaborators.Auth = (*Provider)(nil)
