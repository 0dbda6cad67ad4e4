package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Server  ServerCmd        `cmd:"" help:"Run the casino server"`
	Client  ClientCmd        `cmd:"" help:"Connect as an interactive player"`
	User    UserCmd          `cmd:"" help:"Manage player accounts"`
	History HistoryCmd       `cmd:"" help:"Show a player's recent hands"`
	Bot     BotCmd           `cmd:"" help:"Run automated players"`
	Config  ConfigCmd        `cmd:"" help:"Manage the configuration file"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("casino"),
		kong.Description("Multiplayer Texas Hold'em server and terminal client"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

func newLogger(level log.Level) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
	})
}
