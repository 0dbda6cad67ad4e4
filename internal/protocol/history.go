package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxHistoryEntries caps a HISTORY response.
const MaxHistoryEntries = 50

// HistoryEntry is one hand in a HISTORY response.
type HistoryEntry struct {
	At    time.Time
	Table string
	Net   int
	Hole  string
	Board string
}

// FormatHistory renders OK HISTORY|entry|entry... on a single line.
func FormatHistory(entries []HistoryEntry) string {
	var sb strings.Builder
	sb.WriteString(OK(CmdHistory))
	for _, e := range entries {
		sb.WriteByte('|')
		sb.WriteString(e.At.UTC().Format(time.RFC3339))
		sb.WriteByte(';')
		sb.WriteString(historyField(e.Table, "_"))
		sb.WriteByte(';')
		sb.WriteString(strconv.Itoa(e.Net))
		sb.WriteByte(';')
		sb.WriteString(historyField(e.Hole, ","))
		sb.WriteByte(';')
		sb.WriteString(historyField(e.Board, ","))
	}
	return sb.String()
}

func historyField(s, repl string) string {
	return strings.NewReplacer(";", repl, "|", repl).Replace(s)
}

// ParseHistory parses a HISTORY reply line.
func ParseHistory(line string) ([]HistoryEntry, error) {
	r, err := Expect(line, CmdHistory)
	if err != nil {
		return nil, err
	}

	var entries []HistoryEntry
	for _, raw := range strings.Split(r.Rest, "|") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		f := strings.Split(raw, ";")
		if len(f) != 5 {
			return nil, fmt.Errorf("%w: history entry %q", ErrMalformed, raw)
		}
		at, err := time.Parse(time.RFC3339, f[0])
		if err != nil {
			return nil, fmt.Errorf("%w: history time %q", ErrMalformed, f[0])
		}
		net, err := strconv.Atoi(f[2])
		if err != nil {
			return nil, fmt.Errorf("%w: history net %q", ErrMalformed, f[2])
		}
		entries = append(entries, HistoryEntry{At: at, Table: f[1], Net: net, Hole: f[3], Board: f[4]})
	}
	return entries, nil
}
