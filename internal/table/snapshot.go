package table

import (
	"strings"

	"github.com/lox/casino/poker"
)

// SeatView is the public part of a seat.
type SeatView struct {
	Player string
	Chips  int
	Bet    int
	Folded bool
}

// Snapshot is a player's view of a table. Hole holds only the requesting
// player's own cards.
type Snapshot struct {
	Table         string
	HandID        string
	InProgress    bool
	Hole          []poker.Card
	Board         []poker.Card
	Phase         Phase
	CurrentPlayer string
	Dealer        string
	Pot           int
	CurrentBet    int
	Seats         []SeatView
}

// Snapshot returns player's view of the running hand. Vacated seats are not
// listed.
func (t *Table) Snapshot(player string) Snapshot {
	snap := Snapshot{
		Table:         t.name,
		HandID:        t.handID,
		InProgress:    !t.finished,
		Board:         t.Board(),
		Phase:         t.phase,
		CurrentPlayer: t.CurrentPlayer(),
		Dealer:        t.Dealer(),
		Pot:           t.pot,
		CurrentBet:    t.currentBet,
	}
	for _, s := range t.seats {
		if strings.EqualFold(s.Player, player) {
			snap.Hole = append([]poker.Card(nil), s.Hole...)
		}
		if s.Left {
			continue
		}
		snap.Seats = append(snap.Seats, SeatView{
			Player: s.Player,
			Chips:  s.Chips,
			Bet:    s.Bet,
			Folded: s.Folded,
		})
	}
	return snap
}
