package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/lox/casino/internal/client"
	"github.com/lox/casino/internal/tui"
)

// ClientCmd opens the terminal interface against a running server.
type ClientCmd struct {
	Server   string        `default:"http://localhost:5080" help:"Server URL (http, https, ws or wss)"`
	User     string        `short:"u" required:"" help:"Account name"`
	Password string        `short:"p" env:"CASINO_PASSWORD" required:"" help:"Account password"`
	Register bool          `help:"Create the account before logging in"`
	Poll     time.Duration `default:"1s" help:"Table refresh interval"`
	LogFile  string        `help:"Write client logs to this file"`
	Debug    bool          `help:"Enable debug logging"`
}

func (c *ClientCmd) Run() error {
	// The TUI owns the terminal, so logs go to a file or nowhere.
	var out io.Writer = io.Discard
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		out = f
	}
	level := log.InfoLevel
	if c.Debug {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(out, log.Options{Level: level, ReportTimestamp: true})

	ctx, cancel := context.WithTimeout(context.Background(), client.DefaultTimeout)
	defer cancel()

	conn, err := client.Dial(ctx, strings.TrimSpace(c.Server), logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	if c.Register {
		if err := conn.Register(ctx, c.User, c.Password); err != nil {
			return fmt.Errorf("register %s: %w", c.User, err)
		}
	} else if err := conn.Login(ctx, c.User, c.Password); err != nil {
		return fmt.Errorf("login %s: %w", c.User, err)
	}

	model := tui.NewTUIModel(conn, c.User, logger, tui.WithPollInterval(c.Poll))
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}
