package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/PatonaIM/teamified-accounts-sub013/tokenstore"
)

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user behind the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orch, _, err := newOrchestrator(loadConfig())
			if err != nil {
				return err
			}
			defer orch.Close()

			user := orch.CurrentUser(cmd.Context())
			if user == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			printIdentity(cmd, *user)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orch, _, err := newOrchestrator(loadConfig())
			if err != nil {
				return err
			}
			defer orch.Close()

			// Local tokens are gone even when the provider call fails.
			if err := orch.SignOut(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newSessionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Check for a session shared by another portal application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orch, _, err := newOrchestrator(loadConfig())
			if err != nil {
				return err
			}
			defer orch.Close()

			info := orch.CheckSharedSession(cmd.Context())
			if info == nil || info.Identity == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No shared session")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Shared session found")
			printIdentity(cmd, *info.Identity)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show token storage and stored token state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orch, _, err := newOrchestrator(loadConfig())
			if err != nil {
				return err
			}
			defer orch.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Storage: %s\n", orch.StorageKind())
			fmt.Fprintf(out, "Callback URL: %s\n", orch.CallbackURL())

			access, ok := orch.AccessToken()
			if !ok {
				fmt.Fprintln(out, "Access token: none")
				return nil
			}
			info, err := tokenstore.Inspect(access)
			if err != nil {
				fmt.Fprintln(out, "Access token: present (opaque)")
				return nil
			}
			state := "valid"
			if info.Expired(time.Now()) {
				state = "expired"
			}
			fmt.Fprintf(out, "Access token: %s, subject %s", state, info.Subject)
			if !info.ExpiresAt.IsZero() {
				fmt.Fprintf(out, ", expires %s", info.ExpiresAt.Local().Format(time.RFC1123))
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}
