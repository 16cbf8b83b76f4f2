package cmd

import (
	"context"

	"github.com/pestline/go-auth/cmd/fieldctl/internal/app"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear cached session data",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Machine.Logout(ctx); err != nil {
				pterm.Warning.Printf("Local session cleared, but remote sign out failed: %v\n", err)
				return nil
			}
			pterm.Success.Println("Signed out")
			return nil
		})
	},
}
