package cmd

import (
	"context"
	"fmt"

	"github.com/pestline/go-auth/cmd/fieldctl/internal/app"
	"github.com/pestline/go-auth/repository"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	profileEmail    string
	profileName     string
	profileRole     string
	profilePhone    string
	profilePassword string
	profileApproved bool
	profileRevoke   bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage technician profiles",
	Long:  `Commands for creating, approving and listing the profiles that carry roles and approval.`,
}

var profileAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			record, err := a.Profiles.Create(ctx, repository.NewProfile{
				Email:      profileEmail,
				Name:       profileName,
				Role:       profileRole,
				Phone:      profilePhone,
				Password:   profilePassword,
				IsApproved: profileApproved,
			})
			if err != nil {
				return err
			}
			pterm.Success.Printf("Created profile %s (%s)\n", record.Email, record.Role)
			return nil
		})
	},
}

var profileApproveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve a profile, or revoke approval with --revoke",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Profiles.SetApproval(ctx, profileEmail, !profileRevoke); err != nil {
				return err
			}
			if profileRevoke {
				pterm.Success.Printf("Revoked approval for %s\n", profileEmail)
			} else {
				pterm.Success.Printf("Approved %s\n", profileEmail)
			}
			return nil
		})
	},
}

var profileRoleCmd = &cobra.Command{
	Use:   "role",
	Short: "Change the role of a profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Profiles.SetRole(ctx, profileEmail, profileRole); err != nil {
				return err
			}
			pterm.Success.Printf("%s is now %s\n", profileEmail, profileRole)
			return nil
		})
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			records, err := a.Profiles.List(ctx)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				pterm.Info.Println("No profiles")
				return nil
			}

			table := pterm.TableData{{"EMAIL", "NAME", "ROLE", "APPROVED", "PHONE", "CREATED"}}
			for _, r := range records {
				table = append(table, []string{
					r.Email,
					r.Name,
					r.Role,
					fmt.Sprintf("%t", r.IsApproved),
					r.Phone,
					r.CreatedAt.Format("2006-01-02"),
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
		})
	},
}

func init() {
	profileAddCmd.Flags().StringVar(&profileEmail, "email", "", "Profile email")
	profileAddCmd.Flags().StringVar(&profileName, "name", "", "Display name")
	profileAddCmd.Flags().StringVar(&profileRole, "role", "", "Role (admin or user, default user)")
	profileAddCmd.Flags().StringVar(&profilePhone, "phone", "", "Phone number")
	profileAddCmd.Flags().StringVar(&profilePassword, "password", "", "Password for email sign-in")
	profileAddCmd.Flags().BoolVar(&profileApproved, "approved", false, "Create the profile already approved")
	_ = profileAddCmd.MarkFlagRequired("email")

	profileApproveCmd.Flags().StringVar(&profileEmail, "email", "", "Profile email")
	profileApproveCmd.Flags().BoolVar(&profileRevoke, "revoke", false, "Revoke approval instead")
	_ = profileApproveCmd.MarkFlagRequired("email")

	profileRoleCmd.Flags().StringVar(&profileEmail, "email", "", "Profile email")
	profileRoleCmd.Flags().StringVar(&profileRole, "role", "", "Role (admin or user)")
	_ = profileRoleCmd.MarkFlagRequired("email")
	_ = profileRoleCmd.MarkFlagRequired("role")

	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileApproveCmd)
	profileCmd.AddCommand(profileRoleCmd)
	profileCmd.AddCommand(profileListCmd)
}
