// Package cli implements socialctl, the operator command line for the social service.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/anonto42/nano-midea/social/pkg/config"
	"github.com/anonto42/nano-midea/social/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format   string // "json" | "text"
	LogLevel string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for socialctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "socialctl",
		Short: "Operator tooling for the social API",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level for diagnostics on stderr")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewVAPIDKeysCommand(opts))
	cmd.AddCommand(NewPushTestCommand(opts))

	return cmd
}

// loadConfig reads the same configuration the server does.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn (SOCIAL_POSTGRES_DSN) is not set")
	}
	return cfg, nil
}

func newLogger(opts *RootOptions) logger.Logger {
	zl, err := logger.NewZap(logger.Options{Level: opts.LogLevel, ServiceName: "socialctl"})
	if err != nil {
		return logger.NewNop()
	}
	return zl
}

// printResult writes v as indented JSON, or text via the given formatter.
func printResult(w io.Writer, opts *RootOptions, v any, text func(io.Writer)) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
