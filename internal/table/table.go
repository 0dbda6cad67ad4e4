package table

import (
	"fmt"
	"strings"

	"github.com/lox/casino/poker"
)

// Phase is a betting street.
type Phase int

const (
	Preflop Phase = iota
	Flop
	Turn
	River
)

func (p Phase) String() string {
	switch p {
	case Preflop:
		return "Preflop"
	case Flop:
		return "Flop"
	case Turn:
		return "Turn"
	case River:
		return "River"
	default:
		return "Unknown"
	}
}

// MaxSeats is the number of players dealt into one hand.
const MaxSeats = 6

// Seat is one player's state for the hand.
type Seat struct {
	Player        string
	Chips         int
	Bet           int
	Folded        bool
	Left          bool
	Hole          []poker.Card
	StartingChips int
}

// Stack pairs a player with the chips they bring to the hand.
type Stack struct {
	Player string
	Chips  int
}

// Table is the state machine for a single hand at a named table. It is not
// safe for concurrent use; the Registry serialises access.
type Table struct {
	name       string
	handID     string
	smallBlind int
	bigBlind   int

	seats []*Seat
	deck  *poker.Deck
	board []poker.Card
	pot   int
	phase Phase

	dealer     int
	current    int
	aggressor  int
	currentBet int

	finished   bool
	settlement *Settlement
	messages   []string
}

// HandOption configures a hand during creation.
type HandOption func(*handConfig)

type handConfig struct {
	deck   *poker.Deck
	handID string
}

// WithDeck deals from a prepared deck instead of shuffling a new one.
func WithDeck(d *poker.Deck) HandOption {
	return func(c *handConfig) { c.deck = d }
}

// WithHandID sets the identifier recorded in the settlement.
func WithHandID(id string) HandOption {
	return func(c *handConfig) { c.handID = id }
}

// NewHand shuffles a fresh deck from src, deals two hole cards to each player
// in seating order and posts the blinds. Stacks beyond MaxSeats are ignored.
func NewHand(name string, stacks []Stack, dealer, smallBlind, bigBlind int, src poker.Source, opts ...HandOption) (*Table, error) {
	if len(stacks) > MaxSeats {
		stacks = stacks[:MaxSeats]
	}
	if len(stacks) == 0 {
		return nil, ErrNoPlayers
	}

	cfg := &handConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.deck == nil {
		cfg.deck = poker.NewShuffledDeck(src)
	}

	t := &Table{
		name:       name,
		handID:     cfg.handID,
		smallBlind: smallBlind,
		bigBlind:   bigBlind,
		deck:       cfg.deck,
		dealer:     ((dealer % len(stacks)) + len(stacks)) % len(stacks),
		board:      make([]poker.Card, 0, 5),
	}

	for _, s := range stacks {
		chips := max(s.Chips, 0)
		t.seats = append(t.seats, &Seat{Player: s.Player, Chips: chips, StartingChips: chips})
	}

	// Both cards go to one player before moving to the next.
	for _, s := range t.seats {
		cards, err := t.draw(2)
		if err != nil {
			return nil, fmt.Errorf("table %s: deal hole cards: %w", name, err)
		}
		s.Hole = cards
	}

	t.narrate("New hand. Dealer: %s.", t.seats[t.dealer].Player)
	t.postBlinds()
	return t, nil
}

func (t *Table) postBlinds() {
	n := len(t.seats)
	if n == 1 {
		t.current = t.dealer
		t.aggressor = t.current
		return
	}

	var sb, bb, first int
	if n == 2 {
		sb = t.dealer
		bb = (t.dealer + 1) % n
		first = sb
	} else {
		sb = (t.dealer + 1) % n
		bb = (t.dealer + 2) % n
		first = (t.dealer + 3) % n
	}

	sbAmount := t.post(sb, t.smallBlind)
	bbAmount := t.post(bb, t.bigBlind)
	t.currentBet = bbAmount
	t.narrate("%s posts small blind %d, %s posts big blind %d.",
		t.seats[sb].Player, sbAmount, t.seats[bb].Player, bbAmount)

	t.current = first
	t.aggressor = first
}

// post moves up to amount from the seat's stack into the pot.
func (t *Table) post(i, amount int) int {
	s := t.seats[i]
	amount = min(amount, s.Chips)
	s.Chips -= amount
	s.Bet += amount
	t.pot += amount
	return amount
}

// Apply validates and applies action for player. Rejections are *Error
// values and leave the table unchanged. Any other error is internal and
// leaves the hand unusable.
func (t *Table) Apply(player string, action Action) error {
	if t.finished {
		return ErrHandNotStarted
	}
	i := t.seatIndex(player)
	if i < 0 || i != t.current {
		return ErrNotYourTurn
	}
	s := t.seats[i]

	switch action.Kind {
	case Fold:
		return t.fold(i, "%s folds.", s.Player)

	case Check:
		if s.Bet < t.currentBet {
			return ErrMustCall
		}
		t.narrate("%s checks.", s.Player)

	case Call:
		toPay := max(t.currentBet-s.Bet, 0)
		if toPay > s.Chips {
			return ErrInsufficientChips
		}
		t.post(i, toPay)
		t.narrate("%s calls %d.", s.Player, toPay)

	case Bet, Raise:
		if action.Amount <= 0 {
			return ErrInvalidAmount
		}
		if action.Amount > s.Chips {
			return ErrInsufficientChips
		}
		if s.Bet+action.Amount <= t.currentBet {
			return ErrBetTooSmall
		}
		t.post(i, action.Amount)
		t.currentBet = s.Bet
		t.aggressor = i
		t.narrate("%s %ss %d.", s.Player, action.Kind, action.Amount)

	default:
		return ErrUnknownAction
	}

	if t.activeCount() <= 1 {
		t.finishByFold()
		return nil
	}
	return t.advance()
}

// Leave folds player out of the hand and marks the seat as vacated. The
// departed seat still appears in the settlement.
func (t *Table) Leave(player string) error {
	if t.finished {
		return ErrHandNotStarted
	}
	i := t.seatIndex(player)
	if i < 0 {
		return ErrPlayerNotSeated
	}
	s := t.seats[i]
	if s.Left {
		return nil
	}
	s.Left = true
	if s.Folded {
		t.narrate("%s leaves the table.", s.Player)
		return nil
	}
	return t.fold(i, "%s leaves the table and folds.", s.Player)
}

func (t *Table) fold(i int, format string, args ...any) error {
	t.seats[i].Folded = true
	t.narrate(format, args...)

	if t.activeCount() <= 1 {
		t.finishByFold()
		return nil
	}

	switch {
	case i == t.current && i == t.aggressor:
		// The street owner folded before anyone answered; the next active
		// seat inherits both the turn and the ownership.
		next := t.nextActive(i)
		t.current, t.aggressor = next, next
		return nil
	case i == t.current:
		return t.advance()
	case i == t.aggressor:
		t.aggressor = t.nextActive(i)
	}
	return nil
}

// advance passes the turn to the next active seat, closing the street when
// action returns to the aggressor.
func (t *Table) advance() error {
	next := t.nextActive(t.current)
	if next == t.aggressor {
		return t.closeStreet()
	}
	t.current = next
	return nil
}

func (t *Table) closeStreet() error {
	for _, s := range t.seats {
		s.Bet = 0
	}
	t.currentBet = 0

	var n int
	switch t.phase {
	case Preflop:
		n = 3
	case Flop, Turn:
		n = 1
	case River:
		return t.showdown()
	}

	cards, err := t.draw(n)
	if err != nil {
		return fmt.Errorf("table %s: deal %s: %w", t.name, t.phase+1, err)
	}
	t.board = append(t.board, cards...)
	t.phase++
	t.narrate("%s: %s", t.phase, poker.FormatCards(t.board))

	first := t.nextActive(t.dealer)
	t.current, t.aggressor = first, first
	return nil
}

func (t *Table) showdown() error {
	if len(t.board) != 5 {
		return fmt.Errorf("table %s: showdown with %d community cards", t.name, len(t.board))
	}

	var (
		best    poker.HandValue
		winners []int
	)
	// Walk seats starting after the dealer so odd chips land on the first
	// tied seat in that order.
	for off := 1; off <= len(t.seats); off++ {
		i := (t.dealer + off) % len(t.seats)
		s := t.seats[i]
		if s.Folded {
			continue
		}
		cards := make([]poker.Card, 0, 7)
		cards = append(cards, s.Hole...)
		cards = append(cards, t.board...)
		v := poker.Evaluate(cards)
		t.narrate("%s shows %s (%s).", s.Player, poker.FormatCards(s.Hole), v.Category)

		switch c := poker.Compare(v, best); {
		case len(winners) == 0 || c > 0:
			best = v
			winners = []int{i}
		case c == 0:
			winners = append(winners, i)
		}
	}

	pot := t.pot
	share, odd := pot/len(winners), pot%len(winners)
	names := make([]string, len(winners))
	for k, i := range winners {
		amount := share
		if k < odd {
			amount++
		}
		t.seats[i].Chips += amount
		names[k] = t.seats[i].Player
	}
	t.pot = 0

	if len(winners) == 1 {
		t.narrate("%s wins the pot of %d with %s.", names[0], pot, best.Category)
	} else {
		t.narrate("%s split the pot of %d with %s.", strings.Join(names, " and "), pot, best.Category)
	}

	t.finish(winners, pot, best.Category, false)
	return nil
}

func (t *Table) finishByFold() {
	pot := t.pot
	t.pot = 0

	var winners []int
	for i, s := range t.seats {
		if !s.Folded {
			winners = append(winners, i)
		}
	}

	if len(winners) == 0 {
		// Nobody left to award; contributions go back to their owners.
		for _, s := range t.seats {
			s.Chips = s.StartingChips
		}
		t.narrate("Hand abandoned, no players remain.")
		t.finish(nil, pot, 0, true)
		return
	}

	w := t.seats[winners[0]]
	w.Chips += pot
	t.narrate("%s wins the pot of %d.", w.Player, pot)
	t.finish(winners, pot, 0, true)
}

func (t *Table) finish(winners []int, pot int, category poker.Category, byFold bool) {
	t.finished = true
	t.settlement = t.buildSettlement(winners, pot, category, byFold)
}

// Abort ends the hand without a winner and restores every stack to its value
// at hand start.
func (t *Table) Abort() {
	for _, s := range t.seats {
		s.Chips = s.StartingChips
		s.Bet = 0
	}
	t.pot = 0
	t.finished = true
	t.settlement = nil
}

func (t *Table) draw(n int) ([]poker.Card, error) {
	cards := make([]poker.Card, n)
	for k := range n {
		c, err := t.deck.Draw()
		if err != nil {
			return nil, err
		}
		cards[k] = c
	}
	return cards, nil
}

func (t *Table) nextActive(from int) int {
	n := len(t.seats)
	for off := 1; off <= n; off++ {
		i := (from + off) % n
		if !t.seats[i].Folded {
			return i
		}
	}
	return from
}

func (t *Table) activeCount() int {
	count := 0
	for _, s := range t.seats {
		if !s.Folded {
			count++
		}
	}
	return count
}

func (t *Table) seatIndex(player string) int {
	for i, s := range t.seats {
		if strings.EqualFold(s.Player, player) {
			return i
		}
	}
	return -1
}

func (t *Table) narrate(format string, args ...any) {
	t.messages = append(t.messages, fmt.Sprintf(format, args...))
}

// TakeMessages returns the narration produced since the last call.
func (t *Table) TakeMessages() []string {
	msgs := t.messages
	t.messages = nil
	return msgs
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// HandID returns the identifier of the hand.
func (t *Table) HandID() string { return t.handID }

// Finished reports whether the hand has concluded.
func (t *Table) Finished() bool { return t.finished }

// Settlement returns the result of a concluded hand, or nil while the hand is
// running or after Abort.
func (t *Table) Settlement() *Settlement { return t.settlement }

// Pot returns the chips contributed so far this hand.
func (t *Table) Pot() int { return t.pot }

// Phase returns the current street.
func (t *Table) Phase() Phase { return t.phase }

// Board returns a copy of the community cards.
func (t *Table) Board() []poker.Card { return append([]poker.Card(nil), t.board...) }

// CurrentBet returns the amount each player must match this street.
func (t *Table) CurrentBet() int { return t.currentBet }

// CurrentPlayer returns the player whose turn it is, or "" once finished.
func (t *Table) CurrentPlayer() string {
	if t.finished {
		return ""
	}
	return t.seats[t.current].Player
}

// Dealer returns the player holding the button.
func (t *Table) Dealer() string { return t.seats[t.dealer].Player }

// Seats returns copies of every seat in seating order.
func (t *Table) Seats() []Seat {
	out := make([]Seat, len(t.seats))
	for i, s := range t.seats {
		out[i] = *s
		out[i].Hole = append([]poker.Card(nil), s.Hole...)
	}
	return out
}
