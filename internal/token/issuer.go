package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"insurego-auth/internal/model"
)

// ErrInvalidToken covers every validation failure: bad signature, malformed
// token, elapsed expiry. Collapsing them is deliberate, so callers cannot
// tell a forged token from an expired one.
var ErrInvalidToken = errors.New("invalid or expired token")

// SessionClaims is the claim set carried by issued session tokens.
type SessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer mints and validates self-contained session tokens signed with a
// symmetric deployment key. Tokens are never stored, so revocation before
// expiry is impossible; shortening the TTL is the only mitigation for a
// compromised token.
type Issuer struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewIssuer creates a token issuer. The signing key must be shared only
// among trusted issuers of the deployment.
func NewIssuer(signingKey []byte, ttl time.Duration) (*Issuer, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("signing key must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &Issuer{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}, nil
}

// Issue builds and signs a token asserting subject identity and role until
// the configured TTL elapses.
func (i *Issuer) Issue(subject string, role model.Role) (string, error) {
	now := i.now()
	claims := SessionClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies the signature and expiry of tokenString. Every failure
// mode returns ErrInvalidToken so the two halves cannot be distinguished.
func (i *Issuer) Validate(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}

	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return i.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || !model.ValidRole(model.Role(claims.Role)) {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}
