package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/log"

	"github.com/lox/casino/internal/protocol"
	"github.com/lox/casino/internal/statistics"
)

// HistoryCmd prints a player's settled hands, newest first.
type HistoryCmd struct {
	Name   string `arg:"" help:"Account name"`
	Limit  int    `default:"20" help:"Maximum number of hands to show"`
	Config string `short:"c" default:"casino.hcl" help:"Path to HCL configuration file"`
	DB     string `name:"db" help:"SQLite database path (overrides config)"`
}

func (c *HistoryCmd) Run() error {
	ctx := context.Background()
	logger := newLogger(log.WarnLevel)

	db, cfg, err := openStore(ctx, c.Config, c.DB, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	limit := c.Limit
	if limit <= 0 || limit > protocol.MaxHistoryEntries {
		limit = protocol.MaxHistoryEntries
	}

	balance, err := db.ChipBalance(ctx, c.Name)
	if err != nil {
		return fmt.Errorf("look up %s: %w", c.Name, err)
	}

	entries, err := db.HandHistory(ctx, c.Name, limit)
	if err != nil {
		return err
	}

	fmt.Printf("%s has %d chips\n\n", c.Name, balance)
	if len(entries) == 0 {
		fmt.Println("No hands played yet.")
		return nil
	}

	var stats statistics.Statistics
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tTABLE\tHAND\tRESULT\tNET\tHOLE\tBOARD")
	for _, e := range entries {
		stats.Add(statistics.HandResult{Table: e.Table, Net: e.Net, Result: e.Result})
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%+d\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Table, e.HandID, e.Result, e.Net, e.Hole, e.Board)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	printSummary(&stats, cfg.Table.BigBlind)
	return nil
}

func printSummary(s *statistics.Statistics, bigBlind int) {
	low, high := s.ConfidenceInterval95()
	fmt.Printf("\n%d hands: %d won, %d lost, %d other (%.0f%% won)\n",
		s.Hands, s.Wins, s.Losses, s.Others, s.WinRate()*100)
	fmt.Printf("Net %+d chips, mean %+.1f per hand (95%% CI %+.1f to %+.1f), %.1f bb/100\n",
		s.Net, s.Mean(), low, high, s.BBPer100(bigBlind))
	fmt.Printf("Median %+.0f, biggest win %+d, biggest loss %+d\n", s.Median(), s.BiggestWin, s.BiggestLoss)
	for _, name := range s.TableNames() {
		ts := s.Tables[name]
		fmt.Printf("  %-16s %4d hands %+6d\n", name, ts.Hands, ts.Net)
	}
}
