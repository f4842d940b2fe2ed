package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"payrecord/internal/core"
)

// UserStorage is the persistence the authenticator needs.
type UserStorage interface {
	CreateUser(ctx context.Context, username, passwordHash string) (core.User, error)
	GetUserByUsername(ctx context.Context, username string) (core.User, error)
	GetUserByID(ctx context.Context, id string) (core.User, error)
	UpdateUser(ctx context.Context, u core.User) error
}

// PasswordAuthenticator implements password-based authentication using bcrypt.
type PasswordAuthenticator struct {
	storage UserStorage
	cost    int
}

// NewPasswordAuthenticator creates a new password-based authenticator.
func NewPasswordAuthenticator(storage UserStorage) *PasswordAuthenticator {
	return &PasswordAuthenticator{
		storage: storage,
		cost:    bcrypt.DefaultCost,
	}
}

// WithCost returns a copy using the given bcrypt cost. Tests use bcrypt.MinCost.
func (a *PasswordAuthenticator) WithCost(cost int) *PasswordAuthenticator {
	cp := *a
	cp.cost = cost
	return &cp
}

// HashPassword hashes a password after checking its length.
func (a *PasswordAuthenticator) HashPassword(password string) (string, error) {
	if len(password) < core.MinPasswordLength {
		return "", core.ErrWeakPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Register creates a new user. A taken username yields core.ErrConflict.
func (a *PasswordAuthenticator) Register(ctx context.Context, username, password string) (core.User, error) {
	username = strings.TrimSpace(username)
	if err := core.ValidateCredentials(username, password); err != nil {
		return core.User{}, err
	}

	hashed, err := a.HashPassword(password)
	if err != nil {
		return core.User{}, err
	}

	user, err := a.storage.CreateUser(ctx, username, hashed)
	if err != nil {
		return core.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies the username and password, returning the user if valid.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, username, password string) (core.User, error) {
	user, err := a.storage.GetUserByUsername(ctx, username)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return core.User{}, core.ErrInvalidCredentials
	}
	return user, nil
}

// ResetPassword replaces the password of username.
func (a *PasswordAuthenticator) ResetPassword(ctx context.Context, username, password string) error {
	user, err := a.storage.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	hashed, err := a.HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hashed
	return a.storage.UpdateUser(ctx, user)
}
