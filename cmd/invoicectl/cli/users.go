package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// PasswordEnv may carry the password so it stays out of shell history.
const PasswordEnv = "INVOICECTL_PASSWORD"

func newUserCommand(open Opener) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage sign-in accounts",
	}

	var email, password string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(PasswordEnv)
			}
			if email == "" || password == "" {
				return errors.New("--email and a password (--password or " + PasswordEnv + ") are required")
			}
			return withDeps(cmd, open, func(ctx context.Context, deps *Deps) error {
				if deps.Users == nil {
					return errNotConfigured
				}
				user, err := deps.Users.CreateUser(ctx, email, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", user.ID, user.Email)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&email, "email", "", "email address")
	createCmd.Flags().StringVar(&password, "password", "", "password")
	userCmd.AddCommand(createCmd)
	return userCmd
}
