package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/lox/casino/internal/config"
)

// ConfigCmd groups configuration helpers.
type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write a configuration file with the default settings"`
}

type ConfigInitCmd struct {
	Path  string `arg:"" optional:"" default:"casino.hcl" help:"Where to write the file"`
	Force bool   `short:"f" help:"Overwrite an existing file"`
}

func (c *ConfigInitCmd) Run() error {
	if _, err := os.Stat(c.Path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", c.Path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := config.Default().Save(c.Path); err != nil {
		return fmt.Errorf("write %s: %w", c.Path, err)
	}
	fmt.Printf("Wrote %s\n", c.Path)
	return nil
}
