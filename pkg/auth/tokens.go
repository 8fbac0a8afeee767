package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/cuemby/hazardfeed/pkg/types"
)

// DefaultTokenTTL is the lifetime of issued tokens
const DefaultTokenTTL = 7 * 24 * time.Hour

// Verifier checks a bearer token and returns the identity it carries
type Verifier interface {
	Verify(token string) (*types.Claims, error)
}

type tokenClaims struct {
	Role types.Role `json:"role"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256-signed bearer tokens
type Tokens struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewTokens creates a token issuer. A non-positive ttl selects
// DefaultTokenTTL.
func NewTokens(secret string, ttl time.Duration, clock clockwork.Clock) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, clock: clock}
}

// Issue signs a token for user
func (t *Tokens) Issue(user *types.User) (string, time.Time, error) {
	now := t.clock.Now()
	expires := now.Add(t.ttl)

	claims := tokenClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses token and checks its signature and expiry. Failures wrap
// types.ErrAuth.
func (t *Tokens) Verify(token string) (*types.Claims, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", types.ErrAuth)
		}
		return nil, fmt.Errorf("%w: invalid token", types.ErrAuth)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid token", types.ErrAuth)
	}
	if _, ok := types.ParseRole(string(claims.Role)); !ok {
		return nil, fmt.Errorf("%w: invalid token", types.ErrAuth)
	}

	return &types.Claims{
		UserID:    claims.Subject,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// RequireRole returns ErrAuth when claims is nil and ErrForbidden when the
// role is not one of roles
func RequireRole(claims *types.Claims, roles ...types.Role) error {
	if claims == nil {
		return fmt.Errorf("%w: token required", types.ErrAuth)
	}
	for _, r := range roles {
		if claims.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s may not perform this action", types.ErrForbidden, claims.Role)
}
