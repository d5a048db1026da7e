package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"commenthub/internal/cli/app"
	"commenthub/internal/cli/auth"
	"commenthub/internal/cli/comments"
	cliconfig "commenthub/internal/cli/config"
	"commenthub/internal/config"
	"commenthub/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "commenthub",
	Short:         "Command-line client for the comment service",
	Long:          "Browse threaded comments, post replies with attachments, and follow discussions live.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Log.Level = level
		}
		logger.Init(cfg.Log)

		cmd.SetContext(app.Install(cmd.Context(), cfg))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		app.Shutdown(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./commenthub.yaml or ~/.config/commenthub/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(auth.AuthCmd)
	rootCmd.AddCommand(comments.CommentsCmd)
	rootCmd.AddCommand(cliconfig.ConfigCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, err := rootCmd.ExecuteContextC(ctx)
	if err != nil {
		// PersistentPostRun is skipped when RunE fails
		app.Shutdown(cmd)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
