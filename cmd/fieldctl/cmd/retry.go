package cmd

import (
	"context"

	"github.com/pestline/go-auth/cmd/fieldctl/internal/app"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Drop cached role data and resolve the session again",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			state := a.Machine.Retry(ctx)
			pterm.DefaultSection.Println("Session")
			printState(state)
			return nil
		})
	},
}
