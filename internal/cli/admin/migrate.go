package admin

import (
	"fmt"

	"github.com/cloo-solutions/zenithvault/internal/config"
	"github.com/cloo-solutions/zenithvault/internal/database"
	"github.com/cloo-solutions/zenithvault/internal/logging"
	"github.com/spf13/cobra"
)

func MigrateCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply every pending migration to ZENITH_DATABASE_URL and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !cfg.UsesPostgres() {
				return errPostgresRequired
			}

			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return database.Migrate(cfg.DatabaseURL, source, logger)
		},
	}

	cmd.Flags().StringVar(&source, "source", database.DefaultMigrationsSource, "Migration source URL")

	return cmd
}
