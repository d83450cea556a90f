package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"vansales/internal/cache"
	"vansales/internal/core"
)

// Claims is the session token payload.
type Claims struct {
	Username string    `json:"username"`
	Role     core.Role `json:"role"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 session tokens. Logged out tokens are
// remembered in revoked until they would have expired anyway.
type Tokens struct {
	secret  []byte
	ttl     time.Duration
	revoked cache.Cache[bool]
	now     func() time.Time
}

// NewTokens constructs a Tokens. revoked may be shared between replicas.
func NewTokens(secret string, ttl time.Duration, revoked cache.Cache[bool]) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, revoked: revoked, now: time.Now}
}

// Issue signs a token for u.
func (t *Tokens) Issue(u core.User) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := &Claims{
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        core.NewID(),
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return s, exp, nil
}

func (t *Tokens) parse(token string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parser.SkipClaimsValidation = true
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || !t.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrInvalidToken
	}
	if !claims.Role.IsValid() || claims.Username == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verify returns the session user carried by token.
func (t *Tokens) Verify(ctx context.Context, token string) (core.User, error) {
	claims, err := t.parse(token)
	if err != nil {
		return core.User{}, err
	}
	if t.revoked != nil && claims.ID != "" {
		gone, ok, err := t.revoked.Get(ctx, claims.ID)
		if err != nil {
			return core.User{}, fmt.Errorf("check revocation: %w", err)
		}
		if ok && gone {
			return core.User{}, ErrInvalidToken
		}
	}
	return core.User{Username: claims.Username, Role: claims.Role}, nil
}

// Revoke invalidates token. Invalid tokens are ignored.
func (t *Tokens) Revoke(ctx context.Context, token string) error {
	claims, err := t.parse(token)
	if err != nil || t.revoked == nil {
		return nil
	}
	if err := t.revoked.Set(ctx, claims.ID, true); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
