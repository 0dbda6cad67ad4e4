package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ServerSender is the sender name used for table narration.
const ServerSender = "Server"

// ChatMessage is one line of table chat.
type ChatMessage struct {
	ID     int64
	Sender string
	Text   string
}

// InsertChatMessage appends a message to a table's chat and returns its id.
func (s *Store) InsertChatMessage(ctx context.Context, table, sender, text string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (table_name, sender_name, text, created_at) VALUES (?, ?, ?, ?)`,
		strings.TrimSpace(table), strings.TrimSpace(sender), strings.TrimSpace(text),
		s.clock.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert chat at %s: %w", table, err)
	}
	return res.LastInsertId()
}

// ChatMessagesSince returns messages at table with id greater than afterID,
// oldest first.
func (s *Store) ChatMessagesSince(ctx context.Context, table string, afterID int64) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_name, text FROM chat_messages
		WHERE table_name = ? AND id > ?
		ORDER BY id ASC`, table, afterID)
	if err != nil {
		return nil, fmt.Errorf("read chat at %s: %w", table, err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.Sender, &m.Text); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// NotifyTable posts narration to a table's chat as the server.
func (s *Store) NotifyTable(ctx context.Context, table, text string) error {
	_, err := s.InsertChatMessage(ctx, table, ServerSender, text)
	return err
}
