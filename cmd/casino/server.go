package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/lox/casino/internal/auth"
	"github.com/lox/casino/internal/config"
	"github.com/lox/casino/internal/randutil"
	"github.com/lox/casino/internal/server"
	"github.com/lox/casino/internal/settlement"
	"github.com/lox/casino/internal/store"
	"github.com/lox/casino/internal/table"
)

// ServerCmd runs the TCP and WebSocket listeners.
type ServerCmd struct {
	Config string `short:"c" default:"casino.hcl" help:"Path to HCL configuration file"`
	Addr   string `short:"a" help:"TCP address to bind (overrides config)"`
	WSAddr string `name:"ws-addr" help:"WebSocket address to bind (overrides config)"`
	DB     string `name:"db" help:"SQLite database path (overrides config)"`
	Debug  bool   `help:"Enable debug logging"`
	Seed   *int64 `help:"Deterministic shuffle seed (optional)"`
}

func (c *ServerCmd) Run() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}

	// Command line overrides
	if c.Addr != "" {
		cfg.Server.Address = c.Addr
	}
	if c.WSAddr != "" {
		cfg.Server.WSAddress = c.WSAddr
	}
	if c.DB != "" {
		cfg.Server.Database = c.DB
	}
	if c.Debug {
		cfg.Server.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.Server.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := auth.EnsureAdmin(ctx, db); err != nil {
		return fmt.Errorf("seed admin account: %w", err)
	}

	seed := randutil.Seed(c.Seed)
	if c.Seed != nil {
		logger.Info("Using deterministic seed", "seed", seed)
	} else {
		logger.Debug("Using random seed", "seed", seed)
	}

	settler := settlement.New(db, cfg.Settler(), logger)
	registry := table.NewRegistry(cfg.Stakes(), logger,
		table.WithBalances(db),
		table.WithNotifier(db),
		table.WithHandTracker(db),
		table.WithSettlementSink(settler),
		table.WithRand(randutil.NewLocked(randutil.New(seed))),
	)

	srv := server.New(server.Config{
		Address:      cfg.Server.Address,
		WSAddress:    cfg.Server.WSAddress,
		DefaultChips: cfg.Table.DefaultChips,
	}, db, registry, settler, logger)

	logger.Info("Starting casino server",
		"addr", cfg.Server.Address,
		"ws_addr", cfg.Server.WSAddress,
		"database", cfg.Server.Database,
		"stakes", fmt.Sprintf("%d/%d", cfg.Table.SmallBlind, cfg.Table.BigBlind),
		"max_seats", cfg.Table.MaxSeats)

	if err := srv.Run(ctx); err != nil {
		return err
	}

	if failed := settler.Failed(); len(failed) > 0 {
		logger.Error("Settlements were not recorded", "count", len(failed))
	}
	return nil
}

// openStore opens the database named by the config file for admin commands.
func openStore(ctx context.Context, configPath, dbPath string, logger *log.Logger) (*store.Store, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if dbPath != "" {
		cfg.Server.Database = dbPath
	}
	db, err := store.Open(ctx, cfg.Server.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	return db, cfg, nil
}
