package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"

	"github.com/lox/casino/internal/fileutil"
	"github.com/lox/casino/internal/settlement"
	"github.com/lox/casino/internal/table"
)

// Config represents the complete server configuration
type Config struct {
	Server     ServerSettings
	Table      TableSettings
	Settlement SettlementSettings
}

// ServerSettings contains listener, logging and storage configuration
type ServerSettings struct {
	Address   string `hcl:"address,optional"`
	WSAddress string `hcl:"ws_address,optional"`
	LogLevel  string `hcl:"log_level,optional"`
	Database  string `hcl:"database,optional"`
}

// TableSettings are the stakes shared by every table
type TableSettings struct {
	SmallBlind   int `hcl:"small_blind,optional"`
	BigBlind     int `hcl:"big_blind,optional"`
	MaxSeats     int `hcl:"max_seats,optional"`
	DefaultChips int `hcl:"default_chips,optional"`
}

// SettlementSettings control how concluded hands are persisted
type SettlementSettings struct {
	MaxAttempts int    `hcl:"max_attempts,optional"`
	Backoff     string `hcl:"backoff,optional"`
	QueueSize   int    `hcl:"queue_size,optional"`
}

// the file decodes into optional blocks so a partial file still loads
type fileConfig struct {
	Server     *ServerSettings     `hcl:"server,block"`
	Table      *TableSettings      `hcl:"table,block"`
	Settlement *SettlementSettings `hcl:"settlement,block"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	stakes := table.DefaultStakes()
	settle := settlement.DefaultConfig()
	return &Config{
		Server: ServerSettings{
			Address:   "0.0.0.0:5000",
			WSAddress: "0.0.0.0:5080",
			LogLevel:  "info",
			Database:  "casino.db",
		},
		Table: TableSettings{
			SmallBlind:   stakes.SmallBlind,
			BigBlind:     stakes.BigBlind,
			MaxSeats:     table.MaxSeats,
			DefaultChips: stakes.DefaultChips,
		},
		Settlement: SettlementSettings{
			MaxAttempts: settle.MaxAttempts,
			Backoff:     settle.Backoff.String(),
			QueueSize:   settle.QueueSize,
		},
	}
}

// Save writes c to filename as HCL, replacing any existing file atomically.
func (c *Config) Save(filename string) error {
	f := hclwrite.NewEmptyFile()
	gohcl.EncodeIntoBody(&fileConfig{
		Server:     &c.Server,
		Table:      &c.Table,
		Settlement: &c.Settlement,
	}, f.Body())

	return fileutil.WriteAtomic(filename, 0o644, func(w io.Writer) error {
		_, err := f.WriteTo(w)
		return err
	})
}

// Load reads configuration from an HCL file. A missing file yields the
// defaults; fields left out of the file keep their defaults.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var fc fileConfig
	diags = gohcl.DecodeBody(file.Body, nil, &fc)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	cfg := Default()
	if fc.Server != nil {
		mergeServer(&cfg.Server, *fc.Server)
	}
	if fc.Table != nil {
		mergeTable(&cfg.Table, *fc.Table)
	}
	if fc.Settlement != nil {
		mergeSettlement(&cfg.Settlement, *fc.Settlement)
	}
	return cfg, nil
}

func mergeServer(dst *ServerSettings, src ServerSettings) {
	if src.Address != "" {
		dst.Address = src.Address
	}
	if src.WSAddress != "" {
		dst.WSAddress = src.WSAddress
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.Database != "" {
		dst.Database = src.Database
	}
}

func mergeTable(dst *TableSettings, src TableSettings) {
	if src.SmallBlind != 0 {
		dst.SmallBlind = src.SmallBlind
	}
	if src.BigBlind != 0 {
		dst.BigBlind = src.BigBlind
	}
	if src.MaxSeats != 0 {
		dst.MaxSeats = src.MaxSeats
	}
	if src.DefaultChips != 0 {
		dst.DefaultChips = src.DefaultChips
	}
}

func mergeSettlement(dst *SettlementSettings, src SettlementSettings) {
	if src.MaxAttempts != 0 {
		dst.MaxAttempts = src.MaxAttempts
	}
	if src.Backoff != "" {
		dst.Backoff = src.Backoff
	}
	if src.QueueSize != 0 {
		dst.QueueSize = src.QueueSize
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Address == "" && c.Server.WSAddress == "" {
		return fmt.Errorf("at least one of address or ws_address must be set")
	}
	if c.Server.Database == "" {
		return fmt.Errorf("database path must be set")
	}
	if _, err := log.ParseLevel(c.Server.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Server.LogLevel, err)
	}

	if c.Table.SmallBlind <= 0 {
		return fmt.Errorf("small blind must be positive")
	}
	if c.Table.BigBlind <= c.Table.SmallBlind {
		return fmt.Errorf("big blind must be greater than small blind")
	}
	if c.Table.MaxSeats < 1 || c.Table.MaxSeats > table.MaxSeats {
		return fmt.Errorf("max seats must be between 1 and %d", table.MaxSeats)
	}
	if c.Table.DefaultChips <= 0 {
		return fmt.Errorf("default chips must be positive")
	}

	if c.Settlement.MaxAttempts < 1 {
		return fmt.Errorf("settlement max attempts must be at least 1")
	}
	if c.Settlement.QueueSize < 0 {
		return fmt.Errorf("settlement queue size must not be negative")
	}
	d, err := time.ParseDuration(c.Settlement.Backoff)
	if err != nil {
		return fmt.Errorf("invalid settlement backoff %q: %w", c.Settlement.Backoff, err)
	}
	if d < 0 {
		return fmt.Errorf("settlement backoff must not be negative")
	}
	return nil
}

// Stakes returns the table engine configuration
func (c *Config) Stakes() table.Config {
	return table.Config{
		SmallBlind:   c.Table.SmallBlind,
		BigBlind:     c.Table.BigBlind,
		DefaultChips: c.Table.DefaultChips,
		MaxSeats:     c.Table.MaxSeats,
	}
}

// Settler returns the settlement worker configuration. Validate must have
// accepted the backoff.
func (c *Config) Settler() settlement.Config {
	backoff, _ := time.ParseDuration(c.Settlement.Backoff)
	return settlement.Config{
		MaxAttempts: c.Settlement.MaxAttempts,
		Backoff:     backoff,
		QueueSize:   c.Settlement.QueueSize,
	}
}

// Level returns the configured log level, defaulting to info
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.Server.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
