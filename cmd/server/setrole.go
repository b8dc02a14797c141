package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keyxmakerx/wayfarer/internal/database"
	"github.com/keyxmakerx/wayfarer/internal/plugins/auth"
	"github.com/keyxmakerx/wayfarer/internal/plugins/users"
)

// NewSetRoleCmd creates the set-role subcommand. It is how the first admin
// comes to exist: signup always creates the least-privileged role.
func NewSetRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <email> <role>",
		Short: "Assign a role to an existing account",
		Long:  `Assign one of the roles user, guide, lead-guide or admin to the account with the given email.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := auth.ParseRole(args[1]); err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			db, err := database.NewMariaDB(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("connecting to MariaDB: %w", err)
			}
			defer db.Close()

			return setRole(cmd, users.NewUserService(auth.NewPrincipalRepository(db)), args[0], args[1])
		},
	}
}

// setRole assigns the role and reports the result on the command's output.
func setRole(cmd *cobra.Command, svc users.UserService, email, role string) error {
	p, err := svc.SetRoleByEmail(cmd.Context(), email, role)
	if err != nil {
		return err
	}
	cmd.Printf("%s is now %s\n", p.Email, p.Role)
	return nil
}
