package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lox/casino/internal/table"
	"github.com/lox/casino/poker"
)

// State is the POLL_STATE view of one table for one player.
type State struct {
	Total   int
	Ready   int
	Started bool

	// Set only while a hand is running.
	Hole        []poker.Card
	Board       []poker.Card
	CurrentTurn string
	Phase       string
	Pot         int
	Players     []PlayerState

	Chat []ChatLine
}

// PlayerState is one PLAYER_STATE line.
type PlayerState struct {
	Name   string
	Chips  int
	Bet    int
	Folded bool
}

// ChatLine is one CHAT line.
type ChatLine struct {
	ID     int64
	Sender string
	Text   string
}

// NewState combines seat counts with a table snapshot. Hand details are
// included only when started is set and the snapshot has a hand in progress.
func NewState(total, ready int, started bool, snap table.Snapshot, chat []ChatLine) State {
	st := State{Total: total, Ready: ready, Started: started, Chat: chat}
	if !started || !snap.InProgress {
		return st
	}
	st.Hole = snap.Hole
	st.Board = snap.Board
	st.CurrentTurn = snap.CurrentPlayer
	st.Phase = snap.Phase.String()
	st.Pot = snap.Pot
	for _, s := range snap.Seats {
		st.Players = append(st.Players, PlayerState{Name: s.Player, Chips: s.Chips, Bet: s.Bet, Folded: s.Folded})
	}
	return st
}

// InHand reports whether the state carries a running hand.
func (s State) InHand() bool {
	return s.Phase != ""
}

// Lines renders the state as wire lines, header first.
func (s State) Lines() []string {
	lines := []string{fmt.Sprintf("%s %d %d %s", OK(CmdPollState), s.Total, s.Ready, flag(s.Started))}

	if s.InHand() {
		if len(s.Hole) > 0 {
			lines = append(lines, "PLAYER_CARDS "+poker.FormatCards(s.Hole))
		}
		if len(s.Board) > 0 {
			lines = append(lines, "COMMUNITY "+poker.FormatCards(s.Board))
		}
		if s.CurrentTurn != "" {
			lines = append(lines, "CURRENT_TURN "+s.CurrentTurn)
		}
		lines = append(lines, "PHASE "+s.Phase, "POT "+strconv.Itoa(s.Pot))
		for _, p := range s.Players {
			lines = append(lines, fmt.Sprintf("PLAYER_STATE %s %d %d %s", p.Name, p.Chips, p.Bet, flag(p.Folded)))
		}
	}

	for _, c := range s.Chat {
		lines = append(lines, fmt.Sprintf("CHAT %d %s %s", c.ID, escapeChat(c.Sender), escapeChat(c.Text)))
	}
	return lines
}

// ParseState parses a POLL_STATE response. Lines that are not part of a
// state response are ignored.
func ParseState(lines []string) (State, error) {
	var st State
	if len(lines) == 0 {
		return st, ErrEmptyLine
	}
	if err := st.applyHeader(lines[0]); err != nil {
		return st, err
	}
	for _, line := range lines[1:] {
		if err := st.Apply(line); err != nil {
			return st, err
		}
	}
	return st, nil
}

func (s *State) applyHeader(line string) error {
	r, err := Expect(line, CmdPollState)
	if err != nil {
		return err
	}
	f := strings.Fields(r.Rest)
	if len(f) < 3 {
		return fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	if s.Total, err = strconv.Atoi(f[0]); err != nil {
		return fmt.Errorf("%w: total %q", ErrMalformed, f[0])
	}
	if s.Ready, err = strconv.Atoi(f[1]); err != nil {
		return fmt.Errorf("%w: ready %q", ErrMalformed, f[1])
	}
	s.Started = f[2] == "1"
	return nil
}

// Apply folds one body line into the state.
func (s *State) Apply(line string) error {
	kind, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	var err error
	switch strings.ToUpper(kind) {
	case "PLAYER_CARDS":
		s.Hole, err = poker.ParseCards(rest)
	case "COMMUNITY":
		s.Board, err = poker.ParseCards(rest)
	case "CURRENT_TURN":
		s.CurrentTurn = strings.TrimSpace(rest)
	case "PHASE":
		s.Phase = strings.TrimSpace(rest)
	case "POT":
		s.Pot, err = strconv.Atoi(strings.TrimSpace(rest))
	case "PLAYER_STATE":
		var p PlayerState
		p, err = parsePlayerState(rest)
		s.Players = append(s.Players, p)
	case "CHAT":
		var c ChatLine
		c, err = parseChat(rest)
		s.Chat = append(s.Chat, c)
	}
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrMalformed, line, err)
	}
	return nil
}

func parsePlayerState(rest string) (PlayerState, error) {
	f := strings.Fields(rest)
	if len(f) < 4 {
		return PlayerState{}, fmt.Errorf("want 4 fields, got %d", len(f))
	}
	chips, err := strconv.Atoi(f[1])
	if err != nil {
		return PlayerState{}, err
	}
	bet, err := strconv.Atoi(f[2])
	if err != nil {
		return PlayerState{}, err
	}
	return PlayerState{Name: f[0], Chips: chips, Bet: bet, Folded: f[3] != "0"}, nil
}

func parseChat(rest string) (ChatLine, error) {
	id, rest, _ := strings.Cut(rest, " ")
	sender, text, ok := strings.Cut(rest, " ")
	if !ok {
		return ChatLine{}, fmt.Errorf("missing chat text")
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return ChatLine{}, err
	}
	return ChatLine{ID: n, Sender: unescapeChat(sender), Text: unescapeChat(text)}, nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func escapeChat(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func unescapeChat(s string) string {
	return strings.ReplaceAll(s, `\|`, "|")
}
