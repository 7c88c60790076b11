package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghmassaro/presenca-treino/internal/application"
)

// NewAccountCommand creates the account command group.
func NewAccountCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage login accounts",
	}
	cmd.AddCommand(newAccountAddCommand(rootOpts))
	return cmd
}

func newAccountAddCommand(rootOpts *RootOptions) *cobra.Command {
	var input application.AccountInput

	cmd := &cobra.Command{
		Use:           "add",
		Short:         "Create a login account",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			account, err := a.auth.CreateAccount(cmd.Context(), input)
			if err != nil {
				return err
			}
			role := "student"
			if a.admins.IsAdministrator(application.Identity{Email: account.Email}) {
				role = "administrator"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created account %s (%s)\n", account.Email, role)
			return nil
		},
	}

	cmd.Flags().StringVar(&input.Email, "email", "", "login email")
	cmd.Flags().StringVar(&input.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&input.Password, "password", "", "password (at least 8 characters)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
