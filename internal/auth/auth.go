// Package auth validates player credentials against the user store.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/lox/casino/internal/store"
)

var (
	// ErrInvalidCredentials indicates an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrUserExists indicates a registration for a taken name.
	ErrUserExists = errors.New("auth: user exists")

	// ErrInvalidName indicates a name that cannot travel on the line protocol.
	ErrInvalidName = errors.New("auth: invalid user name")

	// ErrUnavailable indicates the user store could not be reached.
	ErrUnavailable = errors.New("auth: unavailable")
)

// Identity is an authenticated player.
type Identity struct {
	Name  string
	Chips int
}

// Validator checks a user name and password.
type Validator interface {
	// Validate returns:
	//   - (*Identity, nil) if the credentials match
	//   - (nil, ErrInvalidCredentials) if the user is unknown or the password is wrong
	//   - (nil, ErrUnavailable) if the store failed
	Validate(ctx context.Context, user, password string) (*Identity, error)
}

// UserStore is the part of the store auth needs.
type UserStore interface {
	User(ctx context.Context, name string) (store.User, error)
	CreateUser(ctx context.Context, name, passwordHash string, chips int) error
}

// StoreValidator validates against SHA-256 password hashes held in a
// UserStore.
type StoreValidator struct {
	users UserStore
}

// NewStoreValidator creates a validator backed by users.
func NewStoreValidator(users UserStore) *StoreValidator {
	return &StoreValidator{users: users}
}

func (v *StoreValidator) Validate(ctx context.Context, user, password string) (*Identity, error) {
	user = strings.TrimSpace(user)
	if user == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := v.users.User(ctx, user)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Hashes written by older clients may be lower case.
	if !strings.EqualFold(u.PasswordHash, HashPassword(password)) {
		return nil, ErrInvalidCredentials
	}
	return &Identity{Name: u.Name, Chips: u.Chips}, nil
}

// Register creates an account with the default balance.
func (v *StoreValidator) Register(ctx context.Context, user, password string) error {
	return Register(ctx, v.users, user, password, store.DefaultChips)
}

// Register creates an account in users with the given balance.
func Register(ctx context.Context, users UserStore, user, password string, chips int) error {
	user = strings.TrimSpace(user)
	if err := ValidateName(user); err != nil {
		return err
	}
	if password == "" {
		return ErrInvalidCredentials
	}

	err := users.CreateUser(ctx, user, HashPassword(password), chips)
	switch {
	case errors.Is(err, store.ErrUserExists):
		return ErrUserExists
	case err != nil:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// EnsureAdmin creates the admin/admin account if it does not exist.
func EnsureAdmin(ctx context.Context, users UserStore) error {
	err := Register(ctx, users, "admin", "admin", store.DefaultChips)
	if errors.Is(err, ErrUserExists) {
		return nil
	}
	return err
}

// ValidateName rejects names containing whitespace or protocol separators.
func ValidateName(name string) error {
	if name == "" || len(name) > 32 || strings.ContainsAny(name, " \t\r\n|;") {
		return ErrInvalidName
	}
	return nil
}

// HashPassword returns the upper-case hex SHA-256 of password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
