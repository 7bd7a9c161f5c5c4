package engine

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"permitflow/internal/domain"
	"permitflow/internal/repo"
)

// CreateUser registers an identity in the directory. The password is stored
// hashed only.
func (e Engine) CreateUser(ctx context.Context, email, name string, role domain.Role, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, ValidationError{Field: "email", Reason: "valid email required"}
	}
	if name == "" {
		return domain.User{}, ValidationError{Field: "name", Reason: "required"}
	}
	if !domain.ValidRole(role) {
		return domain.User{}, ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", role)}
	}
	if len(password) < 8 {
		return domain.User{}, ValidationError{Field: "password", Reason: "at least 8 characters"}
	}
	u := domain.User{
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: repo.HashPassword(password),
		CreatedAt:    e.nowString(),
	}
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// ErrBadCredentials is returned for both unknown users and wrong passwords.
var ErrBadCredentials = errors.New("invalid credentials")

// Authenticate checks a login attempt against the directory.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrBadCredentials
		}
		return domain.User{}, err
	}
	hash := repo.HashPassword(password)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(u.PasswordHash)) != 1 {
		return domain.User{}, ErrBadCredentials
	}
	return u, nil
}
