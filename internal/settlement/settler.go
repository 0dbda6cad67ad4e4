// Package settlement persists concluded hands off the table's critical path.
package settlement

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/casino/internal/table"
)

// Recorder writes one settlement durably. It must be idempotent per hand or
// atomic, since failed attempts are retried.
type Recorder interface {
	RecordSettlement(ctx context.Context, s *table.Settlement, at time.Time) error
}

// Config controls retries and buffering.
type Config struct {
	MaxAttempts int
	Backoff     time.Duration
	QueueSize   int
}

// DefaultConfig returns five attempts starting at 250ms.
func DefaultConfig() Config {
	return Config{MaxAttempts: 5, Backoff: 250 * time.Millisecond, QueueSize: 256}
}

// Option configures a Settler.
type Option func(*Settler)

// WithClock replaces the real clock, mainly for tests.
func WithClock(c quartz.Clock) Option {
	return func(s *Settler) { s.clock = c }
}

// Settler queues settlements and records them with retries. A settlement is
// never dropped silently: if every attempt fails it is logged in full and
// kept for inspection.
type Settler struct {
	rec    Recorder
	cfg    Config
	clock  quartz.Clock
	logger *log.Logger

	queue   chan *table.Settlement
	done    chan struct{}
	running atomic.Bool

	mu     sync.Mutex
	closed bool
	failed []*table.Settlement
}

// New creates a Settler. Call Run to start the worker.
func New(rec Recorder, cfg Config, logger *log.Logger, opts ...Option) *Settler {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	s := &Settler{
		rec:    rec,
		cfg:    cfg,
		clock:  quartz.NewReal(),
		logger: logger.WithPrefix("settler"),
		queue:  make(chan *table.Settlement, max(cfg.QueueSize, 0)),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit enqueues st. When the queue is full, or the settler is closed, the
// settlement is recorded on the caller's goroutine instead.
func (s *Settler) Submit(st *table.Settlement) {
	s.mu.Lock()
	if !s.closed {
		select {
		case s.queue <- st:
			s.mu.Unlock()
			return
		default:
		}
	}
	s.mu.Unlock()

	s.logger.Warn("Settlement queue unavailable, recording inline", "hand", st.HandID)
	s.record(context.Background(), st)
}

// Run records queued settlements until Close is called. Cancelling ctx does
// not abandon queued work; writes continue with a detached context.
func (s *Settler) Run(ctx context.Context) error {
	s.running.Store(true)
	defer close(s.done)

	ctx = context.WithoutCancel(ctx)
	for st := range s.queue {
		s.record(ctx, st)
	}
	return nil
}

// Close stops accepting queued work and waits for the queue to drain.
func (s *Settler) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	if s.running.Load() {
		<-s.done
		return
	}
	for st := range s.queue {
		s.record(context.Background(), st)
	}
}

// Failed returns settlements that exhausted their retries.
func (s *Settler) Failed() []*table.Settlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*table.Settlement(nil), s.failed...)
}

func (s *Settler) record(ctx context.Context, st *table.Settlement) {
	delay := s.cfg.Backoff
	for attempt := 1; ; attempt++ {
		err := s.rec.RecordSettlement(ctx, st, s.clock.Now())
		if err == nil {
			s.logger.Debug("Settlement recorded", "hand", st.HandID, "table", st.Table, "attempt", attempt)
			return
		}

		if attempt >= s.cfg.MaxAttempts {
			s.logger.Error("Settlement could not be recorded",
				"hand", st.HandID,
				"table", st.Table,
				"winners", st.Winners,
				"pot", st.Pot,
				"players", describe(st),
				"attempts", attempt,
				"error", err)
			s.mu.Lock()
			s.failed = append(s.failed, st)
			s.mu.Unlock()
			return
		}

		s.logger.Warn("Settlement write failed, retrying", "hand", st.HandID, "attempt", attempt, "delay", delay, "error", err)
		t := s.clock.NewTimer(delay, "settler", "backoff")
		<-t.C
		delay *= 2
	}
}

// describe flattens per-player results for the log.
func describe(st *table.Settlement) []string {
	out := make([]string, len(st.Players))
	for i, p := range st.Players {
		out[i] = p.Player + ":" + strconv.Itoa(p.ChipsBefore) + "->" + strconv.Itoa(p.ChipsAfter)
	}
	return out
}
