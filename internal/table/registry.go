package table

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/lox/casino/internal/handid"
	"github.com/lox/casino/internal/randutil"
	"github.com/lox/casino/poker"
)

// BalanceSource supplies a player's persisted chip balance the first time
// they are seen at a table.
type BalanceSource interface {
	ChipBalance(ctx context.Context, player string) (int, error)
}

// SettlementSink receives concluded hands for persistence. Submit must not
// block on I/O.
type SettlementSink interface {
	Submit(s *Settlement)
}

// Notifier receives table narration.
type Notifier interface {
	NotifyTable(ctx context.Context, table, text string) error
}

// HandTracker mirrors the end of a hand into persisted table state. HandOver
// runs under the table lock, before any new hand can start there.
type HandTracker interface {
	HandOver(ctx context.Context, table string) error
}

// Config holds the stakes applied to every table.
type Config struct {
	SmallBlind   int
	BigBlind     int
	DefaultChips int
	// MaxSeats caps how many players are dealt in; zero or anything above
	// the package MaxSeats means MaxSeats.
	MaxSeats int
}

// DefaultStakes returns the 10/20 stakes with 5000 starting chips.
func DefaultStakes() Config {
	return Config{SmallBlind: 10, BigBlind: 20, DefaultChips: 5000, MaxSeats: MaxSeats}
}

func (c Config) seats() int {
	if c.MaxSeats <= 0 || c.MaxSeats > MaxSeats {
		return MaxSeats
	}
	return c.MaxSeats
}

// Outcome is what an operation did to the table.
type Outcome struct {
	Messages   []string
	Settlement *Settlement
	Aborted    bool
}

// HandOver reports whether the operation ended the hand.
func (o Outcome) HandOver() bool {
	return o.Settlement != nil || o.Aborted
}

// Option configures a Registry.
type Option func(*Registry)

// WithBalances sets where unseen players' stacks are loaded from.
func WithBalances(b BalanceSource) Option {
	return func(r *Registry) { r.balances = b }
}

// WithSettlementSink sets where concluded hands are sent.
func WithSettlementSink(s SettlementSink) Option {
	return func(r *Registry) { r.sink = s }
}

// WithNotifier sets the narration target.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithHandTracker sets who is told when a hand ends or fails to start.
func WithHandTracker(t HandTracker) Option {
	return func(r *Registry) { r.tracker = t }
}

// WithRand sets the shuffle source shared by all tables.
func WithRand(src poker.Source) Option {
	return func(r *Registry) { r.rng = src }
}

// WithHandIDs overrides hand identifier generation.
func WithHandIDs(next func() string) Option {
	return func(r *Registry) { r.handIDs = next }
}

// WithDeckFactory makes every hand deal from decks returned by f.
func WithDeckFactory(f func() *poker.Deck) Option {
	return func(r *Registry) { r.decks = f }
}

// Registry is the single authority for live tables. Each table name maps to
// an entry with its own lock, so actions on one table never wait on another.
type Registry struct {
	cfg      Config
	logger   *log.Logger
	balances BalanceSource
	sink     SettlementSink
	notifier Notifier
	tracker  HandTracker
	rng      poker.Source
	handIDs  func() string
	decks    func() *poker.Deck

	mu      sync.Mutex
	entries map[string]*entry
}

// entry outlives individual hands: it remembers stacks and the button while
// players stay seated. live is non-nil only during a hand.
type entry struct {
	mu      sync.Mutex
	key     string
	name    string
	chips   map[string]Stack
	dealer  int
	hands   int
	live    *Table
	removed bool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, logger *log.Logger, opts ...Option) *Registry {
	r := &Registry{
		cfg:     cfg,
		logger:  logger.WithPrefix("registry"),
		handIDs: handid.New,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = randutil.NewLocked(randutil.New(randutil.Seed(nil)))
	}
	return r
}

func (r *Registry) lock(name string, create bool) *entry {
	key := strings.ToLower(name)
	for {
		r.mu.Lock()
		e, ok := r.entries[key]
		if !ok {
			if !create {
				r.mu.Unlock()
				return nil
			}
			e = &entry{key: key, name: name, chips: make(map[string]Stack)}
			r.entries[key] = e
		}
		r.mu.Unlock()

		e.mu.Lock()
		if !e.removed {
			return e
		}
		e.mu.Unlock()
	}
}

// unlock drops entries that no longer hold anything.
func (r *Registry) unlock(e *entry) {
	if e.live == nil && len(e.chips) == 0 {
		r.mu.Lock()
		if r.entries[e.key] == e {
			delete(r.entries, e.key)
		}
		r.mu.Unlock()
		e.removed = true
	}
	e.mu.Unlock()
}

// StartHandIfAllReady deals a new hand to seated, in seating order. Only the
// first Config.MaxSeats players are dealt in.
func (r *Registry) StartHandIfAllReady(ctx context.Context, table string, seated []string) error {
	if len(seated) == 0 {
		return ErrNoPlayers
	}
	_, err := r.StartHandWhenReady(ctx, table, func(context.Context) ([]string, error) {
		return seated, nil
	})
	return err
}

// StartHandWhenReady calls ready under the table lock, so no hand can start
// or end at that table while it runs. ready returns the players to deal in
// seating order, or nil to leave the table idle. A hand that fails to deal
// is reported to the HandTracker like a finished one.
func (r *Registry) StartHandWhenReady(ctx context.Context, table string, ready func(context.Context) ([]string, error)) (bool, error) {
	e := r.lock(table, true)
	defer r.unlock(e)

	if e.live != nil {
		return false, ErrHandInProgress
	}

	seated, err := ready(ctx)
	if err != nil || len(seated) == 0 {
		return false, err
	}
	if err := r.deal(ctx, e, seated); err != nil {
		r.handOver(ctx, e.name)
		return false, err
	}
	return true, nil
}

func (r *Registry) deal(ctx context.Context, e *entry, seated []string) error {
	if limit := r.cfg.seats(); len(seated) > limit {
		r.logger.Warn("Too many players, extra seats sit out", "table", e.name, "seated", len(seated), "limit", limit)
		seated = seated[:limit]
	}

	stacks := make([]Stack, len(seated))
	for i, p := range seated {
		stacks[i] = Stack{Player: p, Chips: r.stackFor(ctx, e, p)}
	}

	dealer := 0
	if e.hands > 0 {
		dealer = (e.dealer + 1) % len(stacks)
	}

	opts := []HandOption{WithHandID(r.handIDs())}
	if r.decks != nil {
		opts = append(opts, WithDeck(r.decks()))
	}
	t, err := NewHand(e.name, stacks, dealer, r.cfg.SmallBlind, r.cfg.BigBlind, r.rng, opts...)
	if err != nil {
		r.logger.Error("Failed to start hand", "table", e.name, "error", err)
		return err
	}

	e.dealer = dealer
	e.hands++
	e.live = t

	r.logger.Info("Hand started", "table", e.name, "hand", t.HandID(), "players", len(stacks), "dealer", t.Dealer())
	r.notify(ctx, e.name, t.TakeMessages())
	return nil
}

func (r *Registry) stackFor(ctx context.Context, e *entry, player string) int {
	key := strings.ToLower(player)
	if st, ok := e.chips[key]; ok {
		return st.Chips
	}

	chips := r.cfg.DefaultChips
	if r.balances != nil {
		bal, err := r.balances.ChipBalance(ctx, player)
		switch {
		case err != nil:
			r.logger.Warn("Balance lookup failed, using default", "player", player, "error", err)
		case bal > 0:
			chips = bal
		}
	}
	e.chips[key] = Stack{Player: player, Chips: chips}
	return chips
}

// ApplyPlayerAction applies action for player at table.
func (r *Registry) ApplyPlayerAction(ctx context.Context, table, player string, action Action) (Outcome, error) {
	e := r.lock(table, false)
	if e == nil {
		return Outcome{}, ErrHandNotStarted
	}
	defer r.unlock(e)

	if e.live == nil {
		return Outcome{}, ErrHandNotStarted
	}

	if err := e.live.Apply(player, action); err != nil {
		if IsRejection(err) {
			r.logger.Debug("Action rejected", "table", e.name, "player", player, "action", action, "reason", ReasonCode(err))
			return Outcome{}, err
		}
		return r.abort(ctx, e, err), err
	}

	r.logger.Debug("Action applied", "table", e.name, "player", player, "action", action)
	return r.conclude(ctx, e), nil
}

// PlayerLeft folds player out of any running hand and forgets their stack at
// this table. Leaving a table with no hand is not an error.
func (r *Registry) PlayerLeft(ctx context.Context, table, player string) (Outcome, error) {
	e := r.lock(table, false)
	if e == nil {
		return Outcome{}, nil
	}
	defer r.unlock(e)

	delete(e.chips, strings.ToLower(player))
	if e.live == nil {
		return Outcome{}, nil
	}

	if err := e.live.Leave(player); err != nil {
		if errors.Is(err, ErrPlayerNotSeated) {
			return Outcome{}, nil
		}
		if IsRejection(err) {
			return Outcome{}, err
		}
		return r.abort(ctx, e, err), err
	}

	r.logger.Info("Player left during hand", "table", e.name, "player", player)
	return r.conclude(ctx, e), nil
}

// Snapshot returns player's view of table. Between hands only the remembered
// stacks are reported.
func (r *Registry) Snapshot(table, player string) Snapshot {
	e := r.lock(table, false)
	if e == nil {
		return Snapshot{Table: table}
	}
	defer r.unlock(e)

	if e.live != nil {
		return e.live.Snapshot(player)
	}

	snap := Snapshot{Table: e.name}
	for _, st := range e.chips {
		snap.Seats = append(snap.Seats, SeatView{Player: st.Player, Chips: st.Chips})
	}
	slices.SortFunc(snap.Seats, func(a, b SeatView) int { return cmp.Compare(a.Player, b.Player) })
	return snap
}

// InProgress reports whether table has a live hand.
func (r *Registry) InProgress(table string) bool {
	e := r.lock(table, false)
	if e == nil {
		return false
	}
	defer r.unlock(e)
	return e.live != nil
}

// conclude flushes narration and, once the hand is over, folds the final
// stacks back into the entry and hands the settlement to the sink.
func (r *Registry) conclude(ctx context.Context, e *entry) Outcome {
	t := e.live
	out := Outcome{Messages: t.TakeMessages()}
	r.notify(ctx, e.name, out.Messages)

	if !t.Finished() {
		return out
	}

	st := t.Settlement()
	for _, s := range t.seats {
		key := strings.ToLower(s.Player)
		if s.Left {
			delete(e.chips, key)
			continue
		}
		e.chips[key] = Stack{Player: s.Player, Chips: s.Chips}
	}
	e.live = nil
	out.Settlement = st
	r.handOver(ctx, e.name)

	r.logger.Info("Hand finished", "table", e.name, "hand", st.HandID, "winners", st.Winners, "pot", st.Pot, "fold", st.ByFold)
	if r.sink != nil {
		r.sink.Submit(st)
	}
	return out
}

func (r *Registry) abort(ctx context.Context, e *entry, cause error) Outcome {
	t := e.live
	t.Abort()
	for _, s := range t.seats {
		key := strings.ToLower(s.Player)
		if s.Left {
			delete(e.chips, key)
			continue
		}
		e.chips[key] = Stack{Player: s.Player, Chips: s.Chips}
	}
	e.live = nil
	r.handOver(ctx, e.name)

	r.logger.Error("Hand aborted", "table", e.name, "hand", t.HandID(), "error", cause)
	msgs := append(t.TakeMessages(), "Hand aborted, stacks restored.")
	r.notify(ctx, e.name, msgs)
	return Outcome{Messages: msgs, Aborted: true}
}

func (r *Registry) handOver(ctx context.Context, table string) {
	if r.tracker == nil {
		return
	}
	if err := r.tracker.HandOver(ctx, table); err != nil {
		r.logger.Error("Failed to reset table after hand", "table", table, "error", err)
	}
}

func (r *Registry) notify(ctx context.Context, table string, msgs []string) {
	if r.notifier == nil {
		return
	}
	for _, m := range msgs {
		if err := r.notifier.NotifyTable(ctx, table, m); err != nil {
			r.logger.Warn("Failed to post table message", "table", table, "error", err)
		}
	}
}
