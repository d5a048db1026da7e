package auth

import (
	"fmt"

	"github.com/spf13/cobra"

	"commenthub/internal/cli/app"
	"commenthub/pkg/models"
	"commenthub/pkg/utils"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to the comment service",
	Long:  "Authenticate with your username and password; the session is kept in the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.From(cmd)
		if err != nil {
			return err
		}

		username, _ := cmd.Flags().GetString("username")
		if username == "" {
			username = prompt("Username: ")
		}
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}

		ctx, cancel := utils.WithTimeout(cmd.Context())
		defer cancel()

		user, err := a.Session.Login(ctx, models.LoginRequest{Username: username, Password: password})
		if err != nil {
			return fmt.Errorf("login failed: %s", models.Message(err))
		}

		fmt.Println("✓ Login successful!")
		fmt.Printf("  Welcome back, %s!\n", user.Username)
		if a.Config.Store.Path != "" && a.Config.Store.Driver != "redis" {
			fmt.Printf("  Session saved to: %s\n", a.Config.Store.Path)
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().String("username", "", "Username")
	AuthCmd.AddCommand(loginCmd)
}
