package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"commenthub/internal/cli/app"
	appconfig "commenthub/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file",
	Long:  "Save the current configuration, with any flag overrides, as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.Config(cmd)
		if err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("path")
		if path == "" {
			path = appconfig.DefaultPath()
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		if cmd.Flags().Changed("base-url") {
			cfg.API.BaseURL, _ = cmd.Flags().GetString("base-url")
		}
		if cmd.Flags().Changed("site-key") {
			cfg.Captcha.SiteKey, _ = cmd.Flags().GetString("site-key")
		}
		if cmd.Flags().Changed("store") {
			cfg.Store.Driver, _ = cmd.Flags().GetString("store")
		}

		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Println("✓ Configuration saved")
		fmt.Printf("  Path: %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().String("path", "", "Where to write the file (default ~/.config/commenthub/config.yaml)")
	initCmd.Flags().String("base-url", "", "Comment service base URL")
	initCmd.Flags().String("site-key", "", "Captcha site key")
	initCmd.Flags().String("store", "", "Session store driver (file, sqlite, redis, memory)")
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")
	ConfigCmd.AddCommand(initCmd)
}
