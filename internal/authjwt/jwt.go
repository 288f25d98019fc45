// Package authjwt implements the bearer-token Auth collaborator using
// HS256-signed JWTs, following the same claims-and-secret shape the rest of
// the platform already issues tokens with.
package authjwt

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/GoatGit/semibot-sub006/internal/collaborators"
)

// Claims is the shape expected in an execution-plane bearer token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
}

// Provider implements collaborators.Auth by verifying an HS256-signed JWT
// against a shared secret.
type Provider struct {
	secret []byte
}

// NewProvider constructs a Provider from the gateway's configured JWT secret.
func NewProvider(secret string) *Provider {
	return &Provider{secret: []byte(secret)}
}

func (p *Provider) Verify(ctx context.Context, token string) (*collaborators.Identity, error) {
	if token == "" {
		return nil, collaborators.ErrUnauthorized
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, collaborators.ErrUnauthorized
	}
	if claims.UserID == "" || claims.OrgID == "" {
		return nil, collaborators.ErrUnauthorized
	}

	return &collaborators.Identity{UserID: claims.UserID, OrgID: claims.OrgID}, nil
}

var _ collaborators.Auth = (*Provider)(nil)
