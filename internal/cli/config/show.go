package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"commenthub/internal/cli/app"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the resolved configuration, after environment overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.Config(cmd)
		if err != nil {
			return err
		}

		source := cfg.Path()
		if source == "" {
			source = "defaults and environment"
		}
		fmt.Println("CommentHub Configuration:")
		fmt.Printf("  Source: %s\n", source)
		fmt.Println("")
		fmt.Printf("Service:\n")
		fmt.Printf("  API: %s\n", cfg.API.BaseURL)
		fmt.Printf("  Timeout: %s\n", cfg.API.Timeout)
		if cfg.API.RateLimit > 0 {
			fmt.Printf("  Rate limit: %.2f req/s (burst %d)\n", cfg.API.RateLimit, cfg.API.Burst)
		} else {
			fmt.Printf("  Rate limit: none\n")
		}
		scheme := "ws"
		if cfg.WS.Secure {
			scheme = "wss"
		}
		fmt.Printf("  Live: %s://%s (replies by %s)\n", scheme, cfg.WS.Host, cfg.Live.Sort)
		if cfg.Captcha.SiteKey != "" {
			fmt.Printf("  Captcha site key: %s\n", cfg.Captcha.SiteKey)
		} else {
			fmt.Printf("  Captcha site key: ✗ not set\n")
		}
		fmt.Println("")

		fmt.Printf("Session store:\n")
		fmt.Printf("  Driver: %s\n", cfg.Store.Driver)
		switch cfg.Store.Driver {
		case "redis":
			fmt.Printf("  Redis: %s db %d (namespace %s)\n", cfg.Store.RedisAddr, cfg.Store.RedisDB, cfg.Store.Namespace)
		case "memory":
		default:
			fmt.Printf("  Path: %s\n", cfg.Store.Path)
		}
		return nil
	},
}

func init() {
	ConfigCmd.AddCommand(showCmd)
}
