package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/pestline/go-auth"
	"github.com/pestline/go-auth/cmd/fieldctl/internal/app"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string
	googleIDToken string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in on this device",
	Long: `Signs in with email and password, or exchanges a Google ID token for a
session. The resolved role and approval status are cached on this device.

The password may also be provided through FIELDCTL_PASSWORD.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			var state auth.State
			if googleIDToken != "" {
				state = a.Machine.SecondaryProviderSignIn(ctx, auth.ProviderAssertion{
					Provider: auth.LoginMethodGoogle,
					Token:    googleIDToken,
				})
			} else {
				password, err := resolvePassword()
				if err != nil {
					return err
				}
				state, err = a.Machine.SignInWithPassword(ctx, loginEmail, password)
				if err != nil && state.User == nil {
					if errors.Is(err, auth.ErrInvalidCredentials) {
						return errors.New("invalid email or password")
					}
					if msg := auth.UserMessage(err); msg != "" {
						return errors.New(msg)
					}
					return err
				}
			}

			if err := failureFrom(state); err != nil {
				return err
			}

			pterm.Success.Printf("Signed in as %s\n", state.User.Email)
			printState(state)
			if !state.User.IsApproved && !state.User.IsAdmin() {
				pterm.Warning.Println("Your account is waiting for approval")
			}
			return nil
		})
	},
}

func resolvePassword() (string, error) {
	if loginPassword != "" {
		return loginPassword, nil
	}
	if v := os.Getenv("FIELDCTL_PASSWORD"); v != "" {
		return v, nil
	}
	if nonInteractive {
		return "", errors.New("--password or FIELDCTL_PASSWORD is required in non-interactive mode")
	}
	return pterm.DefaultInteractiveTextInput.WithMask("*").Show("Password")
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password")
	loginCmd.Flags().StringVar(&googleIDToken, "google-id-token", "", "Google ID token to exchange for a session")
	loginCmd.MarkFlagsMutuallyExclusive("email", "google-id-token")
	loginCmd.MarkFlagsMutuallyExclusive("password", "google-id-token")
	loginCmd.MarkFlagsOneRequired("email", "google-id-token")
}
