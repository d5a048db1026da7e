package auth

import (
	"fmt"

	"github.com/spf13/cobra"

	"commenthub/internal/cli/app"
	"commenthub/pkg/models"
	"commenthub/pkg/utils"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new account",
	Long:  "Create a new account with username, email, and password, then log in with it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.From(cmd)
		if err != nil {
			return err
		}

		username, _ := cmd.Flags().GetString("username")
		email, _ := cmd.Flags().GetString("email")

		if username == "" {
			username = prompt("Username: ")
		}
		if email == "" {
			email = prompt("Email: ")
		}

		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return err
		}

		ctx, cancel := utils.WithLongTimeout(cmd.Context())
		defer cancel()

		user, err := a.Session.Register(ctx, models.RegisterRequest{
			Username:  username,
			Email:     email,
			Password:  password,
			Password2: confirm,
		})
		if err != nil {
			return fmt.Errorf("registration failed: %s", models.Message(err))
		}

		fmt.Println("✓ Account created successfully!")
		fmt.Printf("  Username: %s\n", user.Username)
		if user.Email != "" {
			fmt.Printf("  Email: %s\n", user.Email)
		}
		fmt.Println("  You are now logged in.")
		return nil
	},
}

func init() {
	registerCmd.Flags().String("username", "", "Username")
	registerCmd.Flags().String("email", "", "Email address")
	AuthCmd.AddCommand(registerCmd)
}
