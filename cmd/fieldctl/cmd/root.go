package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/pestline/go-auth/cmd/fieldctl/internal/app"
	"github.com/pestline/go-auth/cmd/fieldctl/internal/config"
	"github.com/spf13/cobra"
)

var (
	envFile        string
	debug          bool
	nonInteractive bool
)

var rootCmd = &cobra.Command{
	Use:   "fieldctl",
	Short: "fieldctl - session and access control for field technicians",
	Long: `fieldctl signs field technicians in, keeps their session and cached role
on this device, and decides which screens they may open.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if os.Getenv("FIELDCTL_NON_INTERACTIVE") == "1" {
			nonInteractive = true
		}

		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}
		cfg, err := config.Load(files...)
		if err != nil {
			return err
		}
		if debug {
			cfg.Debug = true
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(config.InjectConfig(ctx, cfg))
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (default .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable trace logging (also set via FIELDCTL_DEBUG=1)")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "Disable interactive prompts (also set via FIELDCTL_NON_INTERACTIVE=1)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(serveCmd)
}

// withApp wires the session stack for one command run.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	cfg := config.MustFromContext(ctx)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
