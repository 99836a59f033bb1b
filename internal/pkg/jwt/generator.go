// internal/pkg/jwt/generator.go
package jwt

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// Subject describes who a token is issued to.
type Subject struct {
	PrincipalID string
	Email       string
	Role        string
	FullName    string
}

type Generator struct {
	priv       *rsa.PrivateKey
	issuer     string
	audience   string
	kid        string // key id for rotation
	Ttl        time.Duration
	RefreshTtl time.Duration
}

func NewGenerator(priv *rsa.PrivateKey, issuer, audience, kid string, ttl, refreshTtl time.Duration) *Generator {
	return &Generator{
		priv:       priv,
		issuer:     issuer,
		audience:   audience,
		kid:        kid,
		Ttl:        ttl,
		RefreshTtl: refreshTtl,
	}
}

// Generate signs a token for sub and returns it with its JTI.
func (g *Generator) Generate(sub Subject, purpose string, ttl time.Duration) (string, string, error) {
	if g.priv == nil {
		return "", "", fmt.Errorf("jwt generator has nil private key")
	}

	now := time.Now()
	jti := ulid.Make().String()

	claims := &Claims{
		PrincipalID:    sub.PrincipalID,
		Email:          sub.Email,
		Role:           sub.Role,
		FullName:       sub.FullName,
		SessionPurpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   sub.PrincipalID,
			Audience:  []string{g.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if g.kid != "" {
		tok.Header["kid"] = g.kid
	}

	signed, err := tok.SignedString(g.priv)
	return signed, jti, err
}

// GenerateAccessToken generates a standard access token
func (g *Generator) GenerateAccessToken(sub Subject) (string, string, error) {
	return g.Generate(sub, PurposeAccess, g.Ttl)
}

// GenerateRefreshToken generates a refresh token. Refresh tokens carry no role.
func (g *Generator) GenerateRefreshToken(principalID string) (string, string, error) {
	ttl := g.RefreshTtl
	if ttl <= 0 {
		ttl = 60 * 24 * time.Hour
	}
	return g.Generate(Subject{PrincipalID: principalID}, PurposeRefresh, ttl)
}
