package table

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionKind is the closed set of betting actions.
type ActionKind int

const (
	Fold ActionKind = iota
	Check
	Call
	Bet
	Raise
)

func (k ActionKind) String() string {
	switch k {
	case Fold:
		return "fold"
	case Check:
		return "check"
	case Call:
		return "call"
	case Bet:
		return "bet"
	case Raise:
		return "raise"
	default:
		return "unknown"
	}
}

// Action is a parsed player action. Amount is only meaningful for Bet and
// Raise and is the number of chips added to the pot.
type Action struct {
	Kind   ActionKind
	Amount int
}

func (a Action) String() string {
	if a.Kind == Bet || a.Kind == Raise {
		return fmt.Sprintf("%s %d", a.Kind, a.Amount)
	}
	return a.Kind.String()
}

// ParseAction parses "FOLD", "CHECK", "CALL", "BET 40" or "RAISE 100",
// case-insensitively. An amount given to other keywords must still be a
// valid integer and is ignored.
func ParseAction(text string) (Action, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Action{}, ErrEmptyAction
	}

	amount := 0
	if len(fields) >= 2 {
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return Action{}, ErrInvalidAmount
		}
		amount = n
	}

	switch strings.ToUpper(fields[0]) {
	case "FOLD":
		return Action{Kind: Fold}, nil
	case "CHECK":
		return Action{Kind: Check}, nil
	case "CALL":
		return Action{Kind: Call}, nil
	case "BET":
		if amount <= 0 {
			return Action{}, ErrInvalidAmount
		}
		return Action{Kind: Bet, Amount: amount}, nil
	case "RAISE":
		if amount <= 0 {
			return Action{}, ErrInvalidAmount
		}
		return Action{Kind: Raise, Amount: amount}, nil
	default:
		return Action{}, ErrUnknownAction
	}
}
