// Package bot plays hands automatically over the line protocol.
package bot

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/lox/casino/internal/protocol"
	"github.com/lox/casino/internal/table"
	"github.com/lox/casino/poker"
)

// View is what a strategy knows when asked to act.
type View struct {
	Hole       []poker.Card
	Board      []poker.Card
	Phase      string
	Pot        int
	Chips      int // behind, not counting Bet
	Bet        int // committed this street
	CurrentBet int // highest street contribution at the table
	BigBlind   int
	Opponents  int // players still in the hand besides us
}

// NewView extracts user's position from a POLL_STATE. ok is false when user
// is not dealt into the running hand.
func NewView(st protocol.State, user string, bigBlind int) (View, bool) {
	v := View{
		Hole:     st.Hole,
		Board:    st.Board,
		Phase:    st.Phase,
		Pot:      st.Pot,
		BigBlind: bigBlind,
	}
	found := false
	for _, p := range st.Players {
		v.CurrentBet = max(v.CurrentBet, p.Bet)
		if p.Name == user {
			v.Chips, v.Bet = p.Chips, p.Bet
			found = !p.Folded
			continue
		}
		if !p.Folded {
			v.Opponents++
		}
	}
	return v, found && st.InHand()
}

// ToCall is the number of chips needed to match the current bet.
func (v View) ToCall() int {
	return max(v.CurrentBet-v.Bet, 0)
}

// Strategy picks an action for the player whose turn it is.
type Strategy interface {
	Decide(v View) table.Action
}

// checkOrCall is the passive default: check when free, call when
// affordable, otherwise fold.
func checkOrCall(v View) table.Action {
	switch toCall := v.ToCall(); {
	case toCall == 0:
		return table.Action{Kind: table.Check}
	case toCall <= v.Chips:
		return table.Action{Kind: table.Call}
	default:
		return table.Action{Kind: table.Fold}
	}
}

// checkOrFold never puts chips in.
func checkOrFold(v View) table.Action {
	if v.ToCall() == 0 {
		return table.Action{Kind: table.Check}
	}
	return table.Action{Kind: table.Fold}
}

// raiseBy puts in enough to call plus extra. It falls back to checkOrCall
// when the stack is too short.
func raiseBy(v View, extra int) table.Action {
	amount := v.ToCall() + max(extra, 1)
	if amount > v.Chips {
		return checkOrCall(v)
	}
	kind := table.Raise
	if v.CurrentBet == 0 {
		kind = table.Bet
	}
	return table.Action{Kind: kind, Amount: amount}
}

// CallBot checks or calls every street.
type CallBot struct{}

func (CallBot) Decide(v View) table.Action { return checkOrCall(v) }

// FoldBot checks when it can and folds otherwise.
type FoldBot struct{}

func (FoldBot) Decide(v View) table.Action { return checkOrFold(v) }

// RandBot picks uniformly among fold, passive and aggressive play.
type RandBot struct {
	rng *rand.Rand
}

// NewRandBot creates a RandBot drawing from rng.
func NewRandBot(rng *rand.Rand) *RandBot {
	return &RandBot{rng: rng}
}

func (r *RandBot) Decide(v View) table.Action {
	switch r.rng.IntN(3) {
	case 0:
		return checkOrFold(v)
	case 1:
		return checkOrCall(v)
	default:
		unit := max(v.BigBlind, 1)
		return raiseBy(v, unit*(1+r.rng.IntN(3)))
	}
}

// TagBot plays tight-aggressive: strong starting hands and made hands bet,
// marginal ones call small bets, the rest give up.
type TagBot struct{}

func (TagBot) Decide(v View) table.Action {
	bb := max(v.BigBlind, 1)
	if len(v.Board) == 0 {
		switch preflopTier(v.Hole) {
		case 3:
			return raiseBy(v, 3*bb)
		case 2:
			if v.ToCall() <= 3*bb {
				return raiseBy(v, 2*bb)
			}
			return checkOrCall(v)
		case 1:
			if v.ToCall() <= 2*bb {
				return checkOrCall(v)
			}
		}
		return checkOrFold(v)
	}

	cards := append(append([]poker.Card{}, v.Hole...), v.Board...)
	if len(cards) < 5 {
		return checkOrCall(v)
	}
	switch hv := poker.Evaluate(cards); {
	case hv.Category >= poker.TwoPair:
		return raiseBy(v, max(v.Pot/2, bb))
	case hv.Category == poker.Pair:
		if v.ToCall() <= max(v.Pot/2, bb) {
			return checkOrCall(v)
		}
	}
	return checkOrFold(v)
}

// preflopTier scores two hole cards from 0 (trash) to 3 (premium).
func preflopTier(hole []poker.Card) int {
	if len(hole) != 2 {
		return 0
	}
	hi, lo := hole[0], hole[1]
	if lo.Rank > hi.Rank {
		hi, lo = lo, hi
	}
	suited := hi.Suit == lo.Suit

	switch {
	case hi.Rank == lo.Rank && hi.Rank >= poker.Ten:
		return 3
	case hi.Rank == poker.Ace && lo.Rank >= poker.King:
		return 3
	case hi.Rank == lo.Rank:
		return 2
	case hi.Rank >= poker.Queen && lo.Rank >= poker.Jack:
		return 2
	case hi.Rank == poker.Ace, suited && hi.Rank-lo.Rank == 1:
		return 1
	}
	return 0
}

var strategies = map[string]func(rng *rand.Rand) Strategy{
	"call":   func(*rand.Rand) Strategy { return CallBot{} },
	"fold":   func(*rand.Rand) Strategy { return FoldBot{} },
	"random": func(rng *rand.Rand) Strategy { return NewRandBot(rng) },
	"tag":    func(*rand.Rand) Strategy { return TagBot{} },
}

// New returns the named strategy.
func New(name string, rng *rand.Rand) (Strategy, error) {
	f, ok := strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, Names())
	}
	return f(rng), nil
}

// Names lists the available strategies.
func Names() []string {
	names := make([]string, 0, len(strategies))
	for n := range strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
