package settlement

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/casino/internal/table"
)

// flakyRecorder fails the first failures calls.
type flakyRecorder struct {
	mu       sync.Mutex
	failures int
	calls    int
	recorded []string
	at       []time.Time
}

func (r *flakyRecorder) RecordSettlement(_ context.Context, s *table.Settlement, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failures {
		return errors.New("database is locked")
	}
	r.recorded = append(r.recorded, s.HandID)
	r.at = append(r.at, at)
	return nil
}

func (r *flakyRecorder) snapshot() (calls int, recorded []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, append([]string(nil), r.recorded...)
}

func settlementFor(id string) *table.Settlement {
	return &table.Settlement{
		HandID:  id,
		Table:   "main",
		Winners: []string{"alice"},
		Pot:     30,
		Players: []table.PlayerResult{
			{Player: "alice", ChipsBefore: 980, ChipsAfter: 1010, Result: table.ResultWin},
			{Player: "bob", ChipsBefore: 990, ChipsAfter: 990, Result: table.ResultOther},
		},
	}
}

func discard() *log.Logger { return log.New(io.Discard) }

func start(t *testing.T, s *Settler) {
	t.Helper()
	go func() { _ = s.Run(context.Background()) }()
	require.Eventually(t, s.running.Load, time.Second, time.Millisecond)
}

func TestSettlerRecordsInOrder(t *testing.T) {
	t.Parallel()
	rec := &flakyRecorder{}
	mClock := quartz.NewMock(t)
	epoch := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mClock.Set(epoch)

	s := New(rec, DefaultConfig(), discard(), WithClock(mClock))
	start(t, s)

	for _, id := range []string{"h1", "h2", "h3"} {
		s.Submit(settlementFor(id))
	}
	s.Close()

	_, recorded := rec.snapshot()
	assert.Equal(t, []string{"h1", "h2", "h3"}, recorded)
	assert.Equal(t, epoch, rec.at[0])
	assert.Empty(t, s.Failed())
}

func TestSettlerRetriesWithBackoff(t *testing.T) {
	t.Parallel()
	rec := &flakyRecorder{failures: 2}
	mClock := quartz.NewMock(t)

	cfg := Config{MaxAttempts: 5, Backoff: 100 * time.Millisecond, QueueSize: 4}
	s := New(rec, cfg, discard(), WithClock(mClock))
	start(t, s)
	defer s.Close()

	s.Submit(settlementFor("h1"))

	// Backoffs are 100ms then 200ms; stepping by 100ms never skips a timer.
	require.Eventually(t, func() bool {
		if _, recorded := rec.snapshot(); len(recorded) == 1 {
			return true
		}
		mClock.Advance(100 * time.Millisecond)
		return false
	}, 5*time.Second, 5*time.Millisecond)

	calls, _ := rec.snapshot()
	assert.Equal(t, 3, calls)
	assert.Empty(t, s.Failed())
}

func TestSettlerKeepsSettlementsThatExhaustRetries(t *testing.T) {
	t.Parallel()
	rec := &flakyRecorder{failures: 100}
	mClock := quartz.NewMock(t)

	cfg := Config{MaxAttempts: 3, Backoff: 50 * time.Millisecond, QueueSize: 4}
	s := New(rec, cfg, discard(), WithClock(mClock))
	start(t, s)
	defer s.Close()

	s.Submit(settlementFor("doomed"))

	require.Eventually(t, func() bool {
		if len(s.Failed()) == 1 {
			return true
		}
		mClock.Advance(50 * time.Millisecond)
		return false
	}, 5*time.Second, 5*time.Millisecond)

	calls, recorded := rec.snapshot()
	assert.Equal(t, 3, calls)
	assert.Empty(t, recorded)
	assert.Equal(t, "doomed", s.Failed()[0].HandID)
}

func TestSettlerRecordsInlineWhenQueueFull(t *testing.T) {
	t.Parallel()
	rec := &flakyRecorder{}
	s := New(rec, Config{MaxAttempts: 1, QueueSize: 1}, discard())

	s.Submit(settlementFor("queued"))
	s.Submit(settlementFor("inline"))

	_, recorded := rec.snapshot()
	assert.Equal(t, []string{"inline"}, recorded)

	s.Close()
	_, recorded = rec.snapshot()
	assert.Equal(t, []string{"inline", "queued"}, recorded, "close drains without a running worker")
}

func TestSettlerSubmitAfterClose(t *testing.T) {
	t.Parallel()
	rec := &flakyRecorder{}
	s := New(rec, DefaultConfig(), discard())
	s.Close()

	s.Submit(settlementFor("late"))
	_, recorded := rec.snapshot()
	assert.Equal(t, []string{"late"}, recorded)
}
