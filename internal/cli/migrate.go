package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/anonto42/nano-midea/social/internal/repositories"
	"github.com/anonto42/nano-midea/social/pkg/config"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the PostgreSQL schema",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := config.OpenPostgres(cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			if err := repositories.Migrate(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			return printResult(cmd.OutOrStdout(), rootOpts, map[string]bool{"migrated": true}, func(w io.Writer) {
				fmt.Fprintln(w, "✓ Schema migrated")
			})
		},
	}
}
