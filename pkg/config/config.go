// Package config collects the switches and capacities shared by the l25
// command-line tools.
package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/xyproto/env/v2"

	"l25/pkg/compiler"
	"l25/pkg/vm"
)

type Config struct {
	ListCode  bool // write the instruction listing
	ListTable bool // write the symbol table
	Trace     bool // dump the stack after every instruction

	Mode vm.AddressingMode

	MaxErrors  int
	MaxCode    int
	MaxSymbols int
	StackSize  int

	OutDir string // where artifacts are flushed; empty keeps them in memory
}

func Default() Config {
	return Config{
		Mode:       vm.Flat,
		MaxErrors:  compiler.DefaultMaxErrors,
		MaxCode:    compiler.DefaultMaxCode,
		MaxSymbols: compiler.DefaultMaxSymbols,
		StackSize:  vm.DefaultStackSize,
		OutDir:     ".",
	}
}

// FromEnv returns the defaults overlaid with L25_* environment variables.
func FromEnv() (Config, error) {
	env.Load()
	c := Default()
	c.ListCode = env.Bool("L25_LIST_CODE")
	c.ListTable = env.Bool("L25_LIST_TABLE")
	c.Trace = env.Bool("L25_TRACE")
	c.MaxErrors = env.Int("L25_MAX_ERRORS", c.MaxErrors)
	c.MaxCode = env.Int("L25_MAX_CODE", c.MaxCode)
	c.MaxSymbols = env.Int("L25_MAX_SYMBOLS", c.MaxSymbols)
	c.StackSize = env.Int("L25_STACK_SIZE", c.StackSize)
	c.OutDir = env.Str("L25_OUTDIR", c.OutDir)

	if env.Has("L25_MODE") {
		mode, err := vm.ParseAddressingMode(env.Str("L25_MODE"))
		if err != nil {
			return c, fmt.Errorf("L25_MODE: %w", err)
		}
		c.Mode = mode
	}
	return c, c.Validate()
}

// Bind registers flags on fs that override the current values.
func (c *Config) Bind(fs *flag.FlagSet) {
	fs.BoolVar(&c.ListCode, "list-code", c.ListCode, "write the generated code listing")
	fs.BoolVar(&c.ListTable, "list-table", c.ListTable, "write the symbol table")
	fs.BoolVar(&c.Trace, "trace", c.Trace, "dump the stack after every instruction")
	fs.IntVar(&c.MaxErrors, "max-errors", c.MaxErrors, "diagnostics tolerated before giving up")
	fs.IntVar(&c.MaxCode, "max-code", c.MaxCode, "instruction capacity")
	fs.IntVar(&c.MaxSymbols, "max-symbols", c.MaxSymbols, "symbol table capacity")
	fs.IntVar(&c.StackSize, "stack", c.StackSize, "runtime stack size in words")
	fs.StringVar(&c.OutDir, "outdir", c.OutDir, "directory for output artifacts (empty: none)")
	fs.Func("mode", "addressing mode: flat or nested (default "+c.Mode.String()+")", func(s string) error {
		mode, err := vm.ParseAddressingMode(s)
		if err != nil {
			return err
		}
		c.Mode = mode
		return nil
	})
}

// Validate rejects capacities that cannot work.
func (c Config) Validate() error {
	switch {
	case c.MaxErrors < 1:
		return fmt.Errorf("max errors must be positive, got %d", c.MaxErrors)
	case c.MaxCode < 1:
		return fmt.Errorf("max code must be positive, got %d", c.MaxCode)
	case c.MaxSymbols < 1:
		return fmt.Errorf("max symbols must be positive, got %d", c.MaxSymbols)
	case c.StackSize < c.Mode.Layout().Header+1:
		return fmt.Errorf("stack size %d cannot hold a frame", c.StackSize)
	}
	return nil
}

func (c Config) CompileOptions(transcript io.Writer) compiler.Options {
	return compiler.Options{
		Mode:       c.Mode,
		MaxCode:    c.MaxCode,
		MaxSymbols: c.MaxSymbols,
		MaxErrors:  c.MaxErrors,
		Transcript: transcript,
	}
}

func (c Config) MachineOptions() vm.Config {
	return vm.Config{
		Mode:      c.Mode,
		StackSize: c.StackSize,
	}
}
