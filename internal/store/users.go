package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// User is an account row.
type User struct {
	ID           int64
	Name         string
	PasswordHash string
	Chips        int
}

// CreateUser inserts a new account.
func (s *Store) CreateUser(ctx context.Context, name, passwordHash string, chips int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_name, password_hash, chips) VALUES (?, ?, ?)`,
		name, passwordHash, chips)
	if isUniqueViolation(err) {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("create user %s: %w", name, err)
	}
	s.logger.Info("User created", "user", name)
	return nil
}

// User loads an account by name, case-insensitively.
func (s *Store) User(ctx context.Context, name string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_name, password_hash, chips FROM users WHERE user_name = ?`, name).
		Scan(&u.ID, &u.Name, &u.PasswordHash, &u.Chips)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("load user %s: %w", name, err)
	}
	return u, nil
}

// ChipBalance returns the persisted balance for name.
func (s *Store) ChipBalance(ctx context.Context, name string) (int, error) {
	u, err := s.User(ctx, name)
	if err != nil {
		return 0, err
	}
	return u.Chips, nil
}

// SetChipBalance overwrites the persisted balance for name.
func (s *Store) SetChipBalance(ctx context.Context, name string, chips int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET chips = ? WHERE user_name = ?`, chips, name)
	if err != nil {
		return fmt.Errorf("set chips for %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}
