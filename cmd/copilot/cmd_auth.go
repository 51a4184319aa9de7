package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"CopilotChat/internal/auth"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var token, dbName string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the backend access token",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			if token == "" {
				return fmt.Errorf("--token is required")
			}
			if auth.IsTokenExpired(token, time.Now()) {
				return fmt.Errorf("token is expired or malformed")
			}

			if err := a.tokens.Save(auth.Credentials{Token: token, DBName: dbName}); err != nil {
				return err
			}
			a.logger.Info("credentials saved", "path", a.tokens.Path())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged in. Credentials saved to", a.tokens.Path())
			return nil
		}),
	}

	cmd.Flags().StringVar(&token, "token", "", "JWT access token")
	cmd.Flags().StringVar(&dbName, "db-name", "", "Database the token belongs to")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored access token",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, _ []string, a *app) error {
			if err := a.tokens.Remove(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		}),
	}
}
