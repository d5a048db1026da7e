package config

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"commenthub/internal/cli/app"
	appconfig "commenthub/internal/config"
	"commenthub/pkg/models"
	"commenthub/pkg/utils"
)

// HealthChecker pings the comment service
type HealthChecker interface {
	Health(ctx context.Context) (*models.HealthStatus, error)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration and service reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.From(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := utils.WithTimeout(cmd.Context())
		defer cancel()
		return runCheck(ctx, cmd.OutOrStdout(), a.Config, a.Client)
	},
}

func runCheck(ctx context.Context, out io.Writer, cfg *appconfig.Config, checker HealthChecker) error {
	for _, w := range cfg.Warnings() {
		fmt.Fprintf(out, "⚠ %s\n", w)
	}

	status, err := checker.Health(ctx)
	if err != nil {
		fmt.Fprintf(out, "✗ %s unreachable: %s\n", cfg.API.BaseURL, models.Message(err))
		return err
	}
	fmt.Fprintf(out, "✓ %s is %s\n", cfg.API.BaseURL, status.Status)
	return nil
}

func init() {
	ConfigCmd.AddCommand(checkCmd)
}
