package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/lox/casino/internal/auth"
)

// UserCmd groups account administration.
type UserCmd struct {
	Add UserAddCmd `cmd:"" help:"Create a player account"`
}

type UserAddCmd struct {
	Name     string `arg:"" help:"Account name"`
	Password string `short:"p" env:"CASINO_PASSWORD" required:"" help:"Account password"`
	Chips    int    `help:"Starting balance (defaults to table.default_chips)"`
	Config   string `short:"c" default:"casino.hcl" help:"Path to HCL configuration file"`
	DB       string `name:"db" help:"SQLite database path (overrides config)"`
}

func (c *UserAddCmd) Run() error {
	ctx := context.Background()
	logger := newLogger(log.WarnLevel)

	db, cfg, err := openStore(ctx, c.Config, c.DB, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	chips := c.Chips
	if chips <= 0 {
		chips = cfg.Table.DefaultChips
	}
	if err := auth.Register(ctx, db, c.Name, c.Password, chips); err != nil {
		return fmt.Errorf("add %s: %w", c.Name, err)
	}

	fmt.Printf("Created %s with %d chips\n", c.Name, chips)
	return nil
}
