package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"vansales/internal/cache"
	"vansales/internal/core"
)

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestParseAccounts(t *testing.T) {
	hash := mustHash(t, "secret")

	got, err := ParseAccounts([]string{"admin:admin:" + hash, " ", "ahmed:salesperson:" + hash})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, core.RoleSalesperson, got[1].Role)

	tests := map[string][]string{
		"missing hash":   {"admin:admin:"},
		"two parts":      {"admin:admin"},
		"unknown role":   {"admin:owner:" + hash},
		"plain password": {"admin:admin:secret"},
		"duplicate":      {"admin:admin:" + hash, "ADMIN:salesperson:" + hash},
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAccounts(in)
			assert.ErrorIs(t, err, ErrMalformedUser)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	svc := NewService([]Account{
		{Username: "Admin", Role: core.RoleAdmin, PasswordHash: mustHash(t, "admin123")},
		{Username: "ahmed", Role: core.RoleSalesperson, PasswordHash: mustHash(t, "sales123")},
	})
	ctx := context.Background()

	u, err := svc.Authenticate(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, core.User{Username: "Admin", Role: core.RoleAdmin}, u)
	assert.True(t, u.IsAdmin())

	u, err = svc.Authenticate(ctx, " ahmed ", "sales123")
	require.NoError(t, err)
	assert.False(t, u.IsAdmin())

	_, err = svc.Authenticate(ctx, "ahmed", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "admin123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("pw")
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("pw")))
	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestTokensRoundTrip(t *testing.T) {
	ctx := context.Background()
	tokens := NewTokens("0123456789abcdef", time.Hour, cache.NewLRUCache[bool](100, time.Hour))
	user := core.User{Username: "ahmed", Role: core.RoleSalesperson}

	tok, exp, err := tokens.Issue(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	got, err := tokens.Verify(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	require.NoError(t, tokens.Revoke(ctx, tok))
	_, err = tokens.Verify(ctx, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, tokens.Revoke(ctx, "garbage"))
}

func TestTokensRejectTamperingAndExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := NewTokens("0123456789abcdef", time.Hour, nil)
	tokens.now = func() time.Time { return now }

	tok, _, err := tokens.Issue(core.User{Username: "admin", Role: core.RoleAdmin})
	require.NoError(t, err)

	other := NewTokens("fedcba9876543210", time.Hour, nil)
	_, err = other.Verify(ctx, tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	parts := strings.Split(tok, ".")
	_, err = tokens.Verify(ctx, parts[0]+"."+parts[1]+".AAAA")
	assert.ErrorIs(t, err, ErrInvalidToken)

	now = now.Add(2 * time.Hour)
	_, err = tokens.Verify(ctx, tok)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}
