// Package auth checks portal credentials and issues session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"vansales/internal/core"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired session")
	ErrMalformedUser      = errors.New("malformed portal user")
)

// Authenticator verifies a username and password.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (core.User, error)
}

// Account is a configured portal user.
type Account struct {
	Username     string
	Role         core.Role
	PasswordHash string
}

// ParseAccounts reads PORTAL_USERS entries of the form name:role:bcrypt-hash.
func ParseAccounts(entries []string) ([]Account, error) {
	var out []Account
	seen := make(map[string]bool)
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		parts := strings.SplitN(e, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedUser, e)
		}
		role := core.Role(parts[1])
		if !role.IsValid() {
			return nil, fmt.Errorf("%w: unknown role %q for %s", ErrMalformedUser, parts[1], parts[0])
		}
		if _, err := bcrypt.Cost([]byte(parts[2])); err != nil {
			return nil, fmt.Errorf("%w: %s has no bcrypt hash", ErrMalformedUser, parts[0])
		}
		key := strings.ToLower(parts[0])
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate user %s", ErrMalformedUser, parts[0])
		}
		seen[key] = true
		out = append(out, Account{Username: parts[0], Role: role, PasswordHash: parts[2]})
	}
	return out, nil
}

// HashPassword returns the bcrypt hash stored in PORTAL_USERS.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Service authenticates against a fixed set of accounts.
type Service struct {
	accounts map[string]Account
	dummy    []byte
}

var _ Authenticator = (*Service)(nil)

// NewService constructs a Service. Usernames match case-insensitively.
func NewService(accounts []Account) *Service {
	m := make(map[string]Account, len(accounts))
	for _, a := range accounts {
		m[strings.ToLower(a.Username)] = a
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("vansales"), bcrypt.MinCost)
	return &Service{accounts: m, dummy: dummy}
}

// Authenticate validates the credentials. Unknown users still pay for one
// bcrypt comparison.
func (s *Service) Authenticate(_ context.Context, username, password string) (core.User, error) {
	a, ok := s.accounts[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(password))
		return core.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return core.User{}, ErrInvalidCredentials
	}
	return core.User{Username: a.Username, Role: a.Role}, nil
}
