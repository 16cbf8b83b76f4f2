package cmd

import (
	"context"
	"fmt"

	"github.com/goliatone/go-print"
	"github.com/pestline/go-auth/cmd/fieldctl/internal/app"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	statusPath string
	statusRole string
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session and whether a screen may be opened",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			state := a.Machine.Start(ctx)
			decision := a.Gate.PermitState(state, statusRole, statusPath)

			if statusJSON {
				view := viewOf(state)
				view.Path = statusPath
				view.Allowed = &decision.Allowed
				view.RedirectTo = decision.RedirectTo
				fmt.Println(print.MaybePrettyJSON(view))
				return nil
			}

			pterm.DefaultSection.Println("Session")
			printState(state)

			pterm.DefaultSection.Println("Access")
			if decision.Allowed {
				pterm.Success.Printf("%s may be opened\n", statusPath)
			} else {
				pterm.Warning.Printf("%s redirects to %s\n", statusPath, decision.RedirectTo)
			}
			return nil
		})
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusPath, "path", "/", "Screen to check access for")
	statusCmd.Flags().StringVar(&statusRole, "role", "", "Role the screen requires")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status as JSON")
}
