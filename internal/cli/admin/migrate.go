package admin

import (
	"fmt"

	"github.com/cloo-solutions/campaignkb/internal/config"
	"github.com/cloo-solutions/campaignkb/internal/database"
	"github.com/spf13/cobra"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Applies the embedded schema migrations to DATABASE_URL. Only the postgres vector backend needs them.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required for migrations")
			}

			if down {
				return database.RollbackMigrations(cfg.DatabaseURL)
			}
			return database.RunMigrations(cfg.DatabaseURL)
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Roll back every applied migration")
	return cmd
}
