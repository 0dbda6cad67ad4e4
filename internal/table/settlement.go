package table

import (
	"slices"

	"github.com/lox/casino/poker"
)

// Result classifies a player's hand for history.
type Result string

const (
	ResultWin   Result = "Win"
	ResultLoss  Result = "Loss"
	ResultOther Result = "Other"
)

// PlayerResult is one seat's line in a settlement.
type PlayerResult struct {
	Player      string
	Hole        []poker.Card
	ChipsBefore int
	ChipsAfter  int
	Result      Result
	Left        bool
}

// Net is the chip change over the hand.
func (r PlayerResult) Net() int { return r.ChipsAfter - r.ChipsBefore }

// Settlement is the pure outcome of a concluded hand. Persisting it is the
// caller's job.
type Settlement struct {
	HandID   string
	Table    string
	Winners  []string
	Pot      int
	Category poker.Category // zero when the hand ended by fold-out
	ByFold   bool
	Board    []poker.Card
	Players  []PlayerResult
}

// IsWinner reports whether player took part of the pot.
func (s *Settlement) IsWinner(player string) bool {
	return slices.Contains(s.Winners, player)
}

func (t *Table) buildSettlement(winners []int, pot int, category poker.Category, byFold bool) *Settlement {
	st := &Settlement{
		HandID:   t.handID,
		Table:    t.name,
		Pot:      pot,
		Category: category,
		ByFold:   byFold,
		Board:    append([]poker.Card(nil), t.board...),
	}
	for _, i := range winners {
		st.Winners = append(st.Winners, t.seats[i].Player)
	}

	for _, s := range t.seats {
		st.Players = append(st.Players, PlayerResult{
			Player:      s.Player,
			Hole:        append([]poker.Card(nil), s.Hole...),
			ChipsBefore: s.StartingChips,
			ChipsAfter:  s.Chips,
			Result:      classify(st.IsWinner(s.Player), s.StartingChips, s.Chips),
			Left:        s.Left,
		})
	}
	return st
}

func classify(winner bool, before, after int) Result {
	switch {
	case winner && after > before:
		return ResultWin
	case after < before:
		return ResultLoss
	default:
		return ResultOther
	}
}
