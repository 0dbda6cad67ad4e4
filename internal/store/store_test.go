package store

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/casino/internal/table"
	"github.com/lox/casino/poker"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "casino.db"), log.New(io.Discard), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.CreateUser(ctx, "alice", "HASH", 1200))
	assert.ErrorIs(t, s.CreateUser(ctx, "ALICE", "other", 1), ErrUserExists)

	u, err := s.User(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Name)
	assert.Equal(t, "HASH", u.PasswordHash)
	assert.Equal(t, 1200, u.Chips)

	require.NoError(t, s.SetChipBalance(ctx, "alice", 800))
	chips, err := s.ChipBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 800, chips)

	_, err = s.User(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, s.SetChipBalance(ctx, "nobody", 1), ErrUserNotFound)
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "casino.db")

	s, err := Open(ctx, path, log.New(io.Discard))
	require.NoError(t, err)
	require.NoError(t, s.CreateUser(ctx, "bob", "h", 10))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, log.New(io.Discard))
	require.NoError(t, err)
	defer s.Close()
	chips, err := s.ChipBalance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 10, chips)
}

func TestTableMembership(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.CreateTable(ctx, "main", "alice"))
	assert.ErrorIs(t, s.CreateTable(ctx, "MAIN", "bob"), ErrTableExists)
	assert.ErrorIs(t, s.JoinTable(ctx, "missing", "bob"), ErrTableNotFound)

	require.NoError(t, s.JoinTable(ctx, "main", "bob"))
	require.NoError(t, s.JoinTable(ctx, "main", "carol"))
	assert.ErrorIs(t, s.JoinTable(ctx, "main", "bob"), ErrAlreadyJoined)

	players, err := s.TablePlayers(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, players, "join order")

	total, ready, err := s.PlayerCounts(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 0, ready)

	for _, p := range players {
		require.NoError(t, s.SetReady(ctx, "main", p, true))
	}
	all, err := s.AllPlayersReady(ctx, "main")
	require.NoError(t, err)
	assert.True(t, all)

	require.NoError(t, s.MarkGameStarted(ctx, "main"))
	started, err := s.IsGameStarted(ctx, "main")
	require.NoError(t, err)
	assert.True(t, started)

	require.NoError(t, s.HandOver(ctx, "main"))
	started, err = s.IsGameStarted(ctx, "main")
	require.NoError(t, err)
	assert.False(t, started)
	_, ready, err = s.PlayerCounts(ctx, "main")
	require.NoError(t, err)
	assert.Zero(t, ready)

	for _, p := range players {
		require.NoError(t, s.LeaveTable(ctx, "main", p))
	}
	exists, err := s.TableExists(ctx, "main")
	require.NoError(t, err)
	assert.False(t, exists, "empty tables are dropped")

	all, err = s.AllPlayersReady(ctx, "main")
	require.NoError(t, err)
	assert.False(t, all, "an empty table is never ready")
}

func TestClearMemberships(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.CreateTable(ctx, "main", "alice"))
	require.NoError(t, s.JoinTable(ctx, "main", "bob"))
	require.NoError(t, s.MarkGameStarted(ctx, "main"))

	require.NoError(t, s.ClearMemberships(ctx))

	exists, err := s.TableExists(ctx, "main")
	require.NoError(t, err)
	assert.False(t, exists)
	total, _, err := s.PlayerCounts(ctx, "main")
	require.NoError(t, err)
	assert.Zero(t, total)

	require.NoError(t, s.CreateTable(ctx, "main", "carol"), "names are free again")
}

func TestChat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	id1, err := s.InsertChatMessage(ctx, "main", "alice", "  hi all ")
	require.NoError(t, err)
	require.NoError(t, s.NotifyTable(ctx, "main", "bob folds."))
	_, err = s.InsertChatMessage(ctx, "other", "carol", "elsewhere")
	require.NoError(t, err)

	msgs, err := s.ChatMessagesSince(ctx, "main", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, ChatMessage{ID: id1, Sender: "alice", Text: "hi all"}, msgs[0])
	assert.Equal(t, ServerSender, msgs[1].Sender)

	msgs, err = s.ChatMessagesSince(ctx, "main", id1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "bob folds.", msgs[0].Text)
}

func TestRecordSettlement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mClock := quartz.NewMock(t)
	s := openTestStore(t, WithClock(mClock))

	require.NoError(t, s.CreateUser(ctx, "alice", "h", 1000))
	require.NoError(t, s.CreateUser(ctx, "bob", "h", 1000))

	st := &table.Settlement{
		HandID:  "hand-1",
		Table:   "main",
		Winners: []string{"alice"},
		Pot:     40,
		Board:   poker.MustParseCards("AD KC 9S 4H 3C"),
		Players: []table.PlayerResult{
			{Player: "alice", Hole: poker.MustParseCards("AS AH"), ChipsBefore: 1000, ChipsAfter: 1020, Result: table.ResultWin},
			{Player: "bob", Hole: poker.MustParseCards("2C 7D"), ChipsBefore: 1000, ChipsAfter: 980, Result: table.ResultLoss},
		},
	}
	at := time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)

	require.NoError(t, s.RecordSettlement(ctx, st, at))
	require.NoError(t, s.RecordSettlement(ctx, st, at), "retries are idempotent")

	chips, err := s.ChipBalance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 980, chips)

	hist, err := s.HandHistory(ctx, "alice", 50)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, HistoryEntry{
		HandID:      "hand-1",
		Table:       "main",
		CreatedAt:   at,
		Hole:        "AS AH",
		Board:       "AD KC 9S 4H 3C",
		ChipsBefore: 1000,
		ChipsAfter:  1020,
		Net:         20,
		Result:      table.ResultWin,
	}, hist[0])

	st2 := *st
	st2.HandID = "hand-2"
	require.NoError(t, s.RecordSettlement(ctx, &st2, at.Add(time.Minute)))
	hist, err = s.HandHistory(ctx, "bob", 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "hand-2", hist[0].HandID, "newest first")
}

func TestRecordSettlementForUnknownPlayer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openTestStore(t)

	st := &table.Settlement{
		HandID:  "h",
		Table:   "main",
		Players: []table.PlayerResult{{Player: "guest", ChipsBefore: 5000, ChipsAfter: 5000, Result: table.ResultOther}},
	}
	require.NoError(t, s.RecordSettlement(ctx, st, time.Now()))

	hist, err := s.HandHistory(ctx, "guest", 10)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}
