package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/xrauth/internal/config"
	"github.com/sakif/xrauth/internal/server"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply all pending migrations for the backend selected by AUTH_BACKEND,
then exit. The memory backend has nothing to migrate.`,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Backend == config.BackendMemory {
		cmd.Println("Backend is memory: nothing to migrate")
		return nil
	}

	cmd.Printf("Running %s migrations...\n", cfg.Backend)
	applied, err := server.Migrate(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", cfg.Backend, err)
	}

	if len(applied) == 0 {
		cmd.Println("Schema is up to date")
		return nil
	}
	cmd.Printf("Applied migrations: %v\n", applied)
	return nil
}
