package auth

import (
	"fmt"

	"github.com/spf13/cobra"

	"commenthub/internal/cli/app"
	"commenthub/internal/token"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.From(cmd)
		if err != nil {
			return err
		}

		s := a.Session.Snapshot()
		if !s.IsAuthenticated() {
			fmt.Printf("User: Not logged in\n")
			fmt.Printf("  Run 'commenthub auth login' to authenticate\n")
			return nil
		}

		fmt.Printf("User:\n")
		fmt.Printf("  ID: %d\n", s.User.ID)
		fmt.Printf("  Username: %s\n", s.User.Username)
		if s.User.Email != "" {
			fmt.Printf("  Email: %s\n", s.User.Email)
		}
		if ttl := token.TimeToExpire(s.AccessToken); ttl > 0 {
			fmt.Printf("  Access token expires in: %s\n", ttl)
		} else {
			fmt.Printf("  Access token: expired (refreshed on next request)\n")
		}
		fmt.Printf("  Status: ✓ Logged in\n")
		return nil
	},
}

func init() {
	AuthCmd.AddCommand(whoamiCmd)
}
