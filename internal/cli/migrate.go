package cli

import (
	"context"

	"auction-house/utils"

	"github.com/spf13/cobra"
)

// migrateCmd creates tables or indexes for the configured store
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the schema for the configured store",
	Long: `Create tables (postgres, mysql) or indexes (mongo) for the configured
store. Running it again is safe. The memory store has nothing to migrate.

Examples:
  auction-house migrate --store postgres
  STORE=mongo auction-house migrate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(contextOrBackground(cmd.Context()))
	},
}

func runMigrate(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close(ctx)

	m, ok := backend.(Migrator)
	if !ok {
		utils.Info("store has no schema, nothing to migrate", map[string]any{"store": cfg.Store})
		return nil
	}
	if err := m.Migrate(ctx); err != nil {
		return err
	}

	utils.Info("migration complete", map[string]any{"store": cfg.Store})
	return nil
}
