package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keyxmakerx/wayfarer/internal/database"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending migrations to MariaDB, or roll back the latest one with --down.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			db, err := database.NewMariaDB(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("connecting to MariaDB: %w", err)
			}
			defer db.Close()

			if down {
				if err := database.RollbackMigration(db); err != nil {
					return err
				}
				cmd.Println("Rolled back one migration")
				return nil
			}

			if err := database.RunMigrations(db); err != nil {
				return err
			}
			cmd.Println("Migrations completed successfully")
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")

	return cmd
}
