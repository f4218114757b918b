package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/app"
)

func migrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Initialize or update the configured database to the latest schema.
The server and every other command also migrate on startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(Version)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, err := opts.newLogger()
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			_, closeStore, err := app.OpenStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			closeStore()

			logger.Debug("Migrations applied", zap.String("driver", cfg.Database.Driver))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Database (%s) is up to date\n", cfg.Database.Driver)
			return err
		},
	}
}
