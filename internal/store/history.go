package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/casino/internal/table"
	"github.com/lox/casino/poker"
)

// HistoryEntry is one player's record of one hand.
type HistoryEntry struct {
	HandID      string
	Table       string
	CreatedAt   time.Time
	Hole        string
	Board       string
	ChipsBefore int
	ChipsAfter  int
	Net         int
	Result      table.Result
}

// RecordSettlement persists final balances and history rows for every player
// in st in a single transaction. Recording the same hand twice leaves one
// history row per player.
func (s *Store) RecordSettlement(ctx context.Context, st *table.Settlement, at time.Time) error {
	created := at.UTC().Format(time.RFC3339)
	board := poker.FormatCards(st.Board)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range st.Players {
			res, err := tx.ExecContext(ctx,
				`UPDATE users SET chips = ? WHERE user_name = ?`, p.ChipsAfter, p.Player)
			if err != nil {
				return fmt.Errorf("update chips for %s: %w", p.Player, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				s.logger.Warn("Settled player has no account", "player", p.Player, "hand", st.HandID)
			}

			_, err = tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO hand_history
					(hand_id, user_name, table_name, created_at, hole_cards, board_cards,
					 chips_before, chips_after, net, result)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				st.HandID, p.Player, st.Table, created,
				poker.FormatCards(p.Hole), board,
				p.ChipsBefore, p.ChipsAfter, p.Net(), string(p.Result))
			if err != nil {
				return fmt.Errorf("insert history for %s: %w", p.Player, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record hand %s: %w", st.HandID, err)
	}
	return nil
}

// HandHistory returns up to limit of user's most recent hands, newest first.
func (s *Store) HandHistory(ctx context.Context, user string, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hand_id, table_name, created_at, hole_cards, board_cards,
		       chips_before, chips_after, net, result
		FROM hand_history
		WHERE user_name = ?
		ORDER BY id DESC
		LIMIT ?`, user, limit)
	if err != nil {
		return nil, fmt.Errorf("read history for %s: %w", user, err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e       HistoryEntry
			created string
			result  string
		)
		if err := rows.Scan(&e.HandID, &e.Table, &created, &e.Hole, &e.Board,
			&e.ChipsBefore, &e.ChipsAfter, &e.Net, &result); err != nil {
			return nil, err
		}
		e.CreatedAt, err = time.Parse(time.RFC3339, created)
		if err != nil {
			return nil, fmt.Errorf("parse history timestamp %q: %w", created, err)
		}
		e.Result = table.Result(result)
		out = append(out, e)
	}
	return out, rows.Err()
}
