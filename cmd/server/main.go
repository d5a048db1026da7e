// Command server runs the in-memory comment service on a real port, so the
// CLI can be tried without a deployment.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"commenthub/internal/fakeservice"
	"commenthub/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Run a local in-memory comment service",
	Long: "Serve the comment REST API and live channel from memory.\n" +
		"Users are given as username:email:password; demo comments are seeded for the first one.",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().String("addr", "127.0.0.1:8000", "Listen address")
	rootCmd.Flags().StringArray("user", []string{"demo:demo@example.com:demo"}, "Account to create (username:email:password); repeatable")
	rootCmd.Flags().Bool("seed", true, "Seed a few demo comments")
	rootCmd.Flags().Duration("access-ttl", 5*time.Minute, "Access token lifetime")
	rootCmd.Flags().Int("page-size", 25, "Comments per page")
	rootCmd.Flags().Bool("rotate-refresh", false, "Issue a new refresh token on every refresh")
	rootCmd.Flags().String("log-level", "info", "Log level")
}

func run(cmd *cobra.Command, args []string) error {
	level, _ := cmd.Flags().GetString("log-level")
	logger.Init(logger.Config{Level: level, Format: "text", Output: "stderr"})

	addr, _ := cmd.Flags().GetString("addr")
	users, _ := cmd.Flags().GetStringArray("user")
	seed, _ := cmd.Flags().GetBool("seed")
	accessTTL, _ := cmd.Flags().GetDuration("access-ttl")
	pageSize, _ := cmd.Flags().GetInt("page-size")
	rotate, _ := cmd.Flags().GetBool("rotate-refresh")

	secret := os.Getenv("COMMENTHUB_DEV_SECRET")
	svc := fakeservice.New(fakeservice.Options{
		Secret:        secret,
		AccessTTL:     accessTTL,
		PageSize:      pageSize,
		RotateRefresh: rotate,
	})
	defer svc.Close()

	for i, entry := range users {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return fmt.Errorf("invalid --user %q, want username:email:password", entry)
		}
		u, err := svc.AddUser(parts[0], parts[1], parts[2])
		if err != nil {
			return fmt.Errorf("failed to add user %s: %w", parts[0], err)
		}
		logger.Infof("Created user %s (id %d)", u.Username, u.ID)

		if i == 0 && seed {
			first := svc.Seed(u, "Welcome! This is the <strong>first</strong> comment.", nil)
			svc.Seed(u, "Replies nest under their parent.", &first.ID)
			svc.Seed(u, "A second thread with <code>inline code</code>.", nil)
		}
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Starting HTTP server on %s", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("Press Ctrl+C to shutdown")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info(fmt.Sprintf("Received signal: %v", sig))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	logger.Info("Shutdown complete")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
