package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/casino/internal/protocol"
	"github.com/lox/casino/internal/table"
)

// Client is the part of *client.Client a Runner drives.
type Client interface {
	User() string
	CreateTable(ctx context.Context, name string) error
	JoinTable(ctx context.Context, name string) error
	SetReady(ctx context.Context) error
	PollState(ctx context.Context) (protocol.State, error)
	Act(ctx context.Context, action string) error
}

// Config controls a Runner.
type Config struct {
	Table        string
	BigBlind     int
	MinPlayers   int // seated players needed before readying up
	PollInterval time.Duration
	MaxHands     int // stop after this many hands; 0 plays forever
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces the real clock, mainly for tests.
func WithClock(c quartz.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// Runner seats a bot at a table and plays until its context ends.
type Runner struct {
	client   Client
	strategy Strategy
	cfg      Config
	clock    quartz.Clock
	logger   *log.Logger

	ready  bool
	inHand bool
	hands  int
}

// NewRunner creates a Runner. Zero config fields take sensible defaults.
func NewRunner(c Client, s Strategy, cfg Config, logger *log.Logger, opts ...Option) *Runner {
	if cfg.MinPlayers < 1 {
		cfg.MinPlayers = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.BigBlind <= 0 {
		cfg.BigBlind = table.DefaultStakes().BigBlind
	}
	r := &Runner{
		client:   c,
		strategy: s,
		cfg:      cfg,
		clock:    quartz.NewReal(),
		logger:   logger.WithPrefix("bot").With("user", c.User()),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hands returns the number of completed hands the bot was part of.
func (r *Runner) Hands() int { return r.hands }

// Run joins the table, creating it if needed, and plays. It returns nil
// when ctx ends or MaxHands is reached.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.sit(ctx); err != nil {
		return err
	}

	ticker := r.clock.NewTicker(r.cfg.PollInterval, "bot", "poll")
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Step(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if r.done() {
				r.logger.Info("Hand limit reached", "hands", r.hands)
				return nil
			}
		}
	}
}

func (r *Runner) done() bool {
	return r.cfg.MaxHands > 0 && r.hands >= r.cfg.MaxHands
}

func (r *Runner) sit(ctx context.Context) error {
	err := r.client.JoinTable(ctx, r.cfg.Table)
	if hasCode(err, protocol.CodeTableNotFound) {
		err = r.client.CreateTable(ctx, r.cfg.Table)
		if hasCode(err, protocol.CodeTableExists) {
			err = r.client.JoinTable(ctx, r.cfg.Table)
		}
	}
	if err != nil && !hasCode(err, protocol.CodeAlreadyJoined) {
		return err
	}
	r.ready = false
	r.logger.Info("Seated", "table", r.cfg.Table)
	return nil
}

// Step polls once and acts if it is the bot's turn.
func (r *Runner) Step(ctx context.Context) error {
	st, err := r.client.PollState(ctx)
	if hasCode(err, protocol.CodeNotAtTable) {
		return r.sit(ctx)
	}
	if err != nil {
		return err
	}

	if !st.InHand() {
		if r.inHand {
			r.inHand = false
			r.hands++
			r.logger.Debug("Hand finished", "hands", r.hands)
		}
		if r.done() {
			return nil
		}
		if !r.ready && st.Total >= r.cfg.MinPlayers {
			err := r.client.SetReady(ctx)
			if err != nil && !hasCode(err, table.ErrHandInProgress.Code) {
				return err
			}
			r.ready = err == nil
		}
		return nil
	}

	// The server clears ready flags once a hand ends.
	r.inHand = true
	r.ready = false

	if st.CurrentTurn != r.client.User() {
		return nil
	}
	view, ok := NewView(st, r.client.User(), r.cfg.BigBlind)
	if !ok {
		return nil
	}
	return r.act(ctx, view)
}

func (r *Runner) act(ctx context.Context, v View) error {
	action := r.strategy.Decide(v)
	r.logger.Debug("Acting", "action", action, "hole", v.Hole, "pot", v.Pot, "to_call", v.ToCall())

	err := r.client.Act(ctx, strings.ToUpper(action.String()))
	var re *protocol.ReplyError
	if !errors.As(err, &re) {
		return err
	}

	switch re.Code {
	case table.ErrNotYourTurn.Code, table.ErrHandNotStarted.Code:
		// Stale state; the next poll catches up.
		return nil
	}

	r.logger.Warn("Action rejected", "action", action, "code", re.Code)
	fallback := checkOrCall(v)
	if fallback == action {
		fallback = table.Action{Kind: table.Fold}
	}
	if err := r.client.Act(ctx, strings.ToUpper(fallback.String())); err != nil && !errors.As(err, &re) {
		return err
	}
	return nil
}

func hasCode(err error, code string) bool {
	var re *protocol.ReplyError
	return errors.As(err, &re) && re.Code == code
}
