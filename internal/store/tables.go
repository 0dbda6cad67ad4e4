package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateTable registers a table and seats its owner.
func (s *Store) CreateTable(ctx context.Context, name, owner string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tables (name, owner_name, is_started) VALUES (?, ?, 0)`, name, owner)
		if isUniqueViolation(err) {
			return ErrTableExists
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO table_players (table_name, user_name, is_ready) VALUES (?, ?, 0)`,
			name, owner)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrTableExists) {
			return err
		}
		return fmt.Errorf("create table %s: %w", name, err)
	}
	s.logger.Info("Table created", "table", name, "owner", owner)
	return nil
}

// TableExists reports whether a table is registered.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tables WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return n > 0, nil
}

// JoinTable seats user at an existing table.
func (s *Store) JoinTable(ctx context.Context, name, user string) error {
	ok, err := s.TableExists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTableNotFound
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO table_players (table_name, user_name, is_ready) VALUES (?, ?, 0)`,
		name, user)
	if err != nil {
		return fmt.Errorf("join table %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyJoined
	}
	return nil
}

// LeaveTable removes user from a table and deletes the table once empty.
func (s *Store) LeaveTable(ctx context.Context, name, user string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM table_players WHERE table_name = ? AND user_name = ?`, name, user); err != nil {
			return fmt.Errorf("leave table %s: %w", name, err)
		}

		var remaining int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM table_players WHERE table_name = ?`, name).Scan(&remaining); err != nil {
			return fmt.Errorf("count players at %s: %w", name, err)
		}
		if remaining > 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM tables WHERE name = ?`, name); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
		s.logger.Info("Table removed", "table", name)
		return nil
	})
}

// SetReady sets user's ready flag at a table.
func (s *Store) SetReady(ctx context.Context, name, user string, ready bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE table_players SET is_ready = ? WHERE table_name = ? AND user_name = ?`,
		ready, name, user)
	if err != nil {
		return fmt.Errorf("set ready at %s: %w", name, err)
	}
	return nil
}

// PlayerCounts returns how many players are seated and how many are ready.
func (s *Store) PlayerCounts(ctx context.Context, name string) (total, ready int, err error) {
	var readyCount sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(1), SUM(CASE WHEN is_ready = 1 THEN 1 ELSE 0 END)
		FROM table_players WHERE table_name = ?`, name).Scan(&total, &readyCount)
	if err != nil {
		return 0, 0, fmt.Errorf("count players at %s: %w", name, err)
	}
	return total, int(readyCount.Int64), nil
}

// AllPlayersReady reports whether at least one player is seated and every
// seated player is ready.
func (s *Store) AllPlayersReady(ctx context.Context, name string) (bool, error) {
	total, ready, err := s.PlayerCounts(ctx, name)
	if err != nil {
		return false, err
	}
	return total > 0 && total == ready, nil
}

// TablePlayers lists the players at a table in the order they joined.
func (s *Store) TablePlayers(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_name FROM table_players WHERE table_name = ? ORDER BY id ASC`, name)
	if err != nil {
		return nil, fmt.Errorf("list players at %s: %w", name, err)
	}
	defer rows.Close()

	var players []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// MarkGameStarted flags a table as having a hand in progress. HandOver
// clears it.
func (s *Store) MarkGameStarted(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE tables SET is_started = 1 WHERE name = ?`, name); err != nil {
		return fmt.Errorf("mark %s started: %w", name, err)
	}
	return nil
}

// IsGameStarted reports the in-progress flag. Unknown tables are not started.
func (s *Store) IsGameStarted(ctx context.Context, name string) (bool, error) {
	var started bool
	err := s.db.QueryRowContext(ctx, `SELECT is_started FROM tables WHERE name = ?`, name).Scan(&started)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s started: %w", name, err)
	}
	return started, nil
}

// HandOver marks the table finished and clears every ready flag in one
// transaction. It implements table.HandTracker.
func (s *Store) HandOver(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE tables SET is_started = 0 WHERE name = ?`, name); err != nil {
			return fmt.Errorf("mark %s finished: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE table_players SET is_ready = 0 WHERE table_name = ?`, name); err != nil {
			return fmt.Errorf("reset ready at %s: %w", name, err)
		}
		return nil
	})
}

// ClearMemberships drops every table and seat. Memberships only mean
// something while their sessions are connected, so a starting server calls
// this to forget what a previous process left behind.
func (s *Store) ClearMemberships(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM table_players`)
		if err != nil {
			return fmt.Errorf("clear seats: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tables`); err != nil {
			return fmt.Errorf("clear tables: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			s.logger.Info("Cleared stale seats", "seats", n)
		}
		return nil
	})
}
