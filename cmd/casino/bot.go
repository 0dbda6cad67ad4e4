package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/casino/internal/bot"
	"github.com/lox/casino/internal/client"
	"github.com/lox/casino/internal/protocol"
	"github.com/lox/casino/internal/randutil"
)

// BotCmd seats one or more automated players at a table.
type BotCmd struct {
	Server   string        `default:"http://localhost:5080" help:"Server URL (http, https, ws or wss)"`
	Table    string        `default:"bots" help:"Table to join, created if missing"`
	Strategy string        `default:"call" help:"Strategy: call, fold, random or tag"`
	Count    int           `default:"1" help:"Number of bots to run"`
	Name     string        `default:"bot" help:"Account name, suffixed with a number when count > 1"`
	Password string        `default:"bot" env:"CASINO_BOT_PASSWORD" help:"Account password"`
	Hands    int           `help:"Stop after this many hands (0 = forever)"`
	BigBlind int           `default:"20" help:"Big blind used for bet sizing"`
	Poll     time.Duration `default:"250ms" help:"Table refresh interval"`
	Seed     *int64        `help:"Deterministic seed for the random strategy"`
	Debug    bool          `help:"Enable debug logging"`
}

func (c *BotCmd) Run() error {
	level := log.InfoLevel
	if c.Debug {
		level = log.DebugLevel
	}
	logger := newLogger(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rng := randutil.New(randutil.Seed(c.Seed))

	g, gctx := errgroup.WithContext(ctx)
	for i := range max(c.Count, 1) {
		name := c.Name
		if c.Count > 1 {
			name = fmt.Sprintf("%s%d", c.Name, i+1)
		}
		// Each bot gets its own stream so goroutines never share a *rand.Rand.
		strategy, err := bot.New(strings.ToLower(c.Strategy), randutil.New(rng.Int64()))
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}

		conn, err := c.connect(gctx, name, logger)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}

		runner := bot.NewRunner(conn, strategy, bot.Config{
			Table:        c.Table,
			BigBlind:     c.BigBlind,
			PollInterval: c.Poll,
			MaxHands:     c.Hands,
		}, logger)

		g.Go(func() error {
			defer conn.Close()
			if err := runner.Run(gctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			logger.Info("Bot finished", "user", name, "hands", runner.Hands())
			return nil
		})
	}
	return g.Wait()
}

// connect logs in as name, creating the account on first use.
func (c *BotCmd) connect(ctx context.Context, name string, logger *log.Logger) (*client.Client, error) {
	conn, err := client.Dial(ctx, c.Server, logger)
	if err != nil {
		return nil, err
	}

	err = conn.Register(ctx, name, c.Password)
	var re *protocol.ReplyError
	if errors.As(err, &re) && re.Code == protocol.CodeUserExists {
		err = conn.Login(ctx, name, c.Password)
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sign in %s: %w", name, err)
	}
	return conn, nil
}
