package auth

import (
	"fmt"

	"github.com/spf13/cobra"

	"commenthub/internal/cli/app"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.From(cmd)
		if err != nil {
			return err
		}
		if err := a.Session.Logout(cmd.Context()); err != nil {
			return fmt.Errorf("logout failed: %w", err)
		}
		fmt.Println("✓ Logged out")
		return nil
	},
}

func init() {
	AuthCmd.AddCommand(logoutCmd)
}
