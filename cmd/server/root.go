package main

import (
	"github.com/spf13/cobra"

	"github.com/keyxmakerx/wayfarer/internal/config"
)

// NewRootCmd creates the root command for the Wayfarer CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wayfarer",
		Short: "Wayfarer API server",
		Long: `Wayfarer serves the credential and account API. Configuration is read
from environment variables; see internal/config for the full list.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSetRoleCmd())

	return cmd
}

// loadConfig loads configuration and installs the logger. Every
// subcommand starts here.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	return cfg, nil
}
