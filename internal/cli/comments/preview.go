package comments

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"commenthub/internal/cli/app"
	"commenthub/internal/render"
	"commenthub/pkg/models"
	"commenthub/pkg/utils"
)

var previewCmd = &cobra.Command{
	Use:   "preview <text>",
	Short: "Render text the way the service would publish it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.From(cmd)
		if err != nil {
			return err
		}
		challenge, _ := cmd.Flags().GetString("captcha-token")
		if challenge == "" {
			challenge = os.Getenv("COMMENTHUB_CAPTCHA_TOKEN")
		}

		ctx, cancel := utils.WithTimeout(cmd.Context())
		defer cancel()

		preview, err := a.Client.PreviewText(ctx, args[0], challenge)
		if err != nil {
			return fmt.Errorf("preview failed: %s", models.Message(err))
		}

		raw, _ := cmd.Flags().GetBool("html")
		if raw {
			fmt.Println(render.Sanitize(preview.Text))
			return nil
		}
		fmt.Println(render.PlainText(preview.Text))
		return nil
	},
}

func init() {
	previewCmd.Flags().String("captcha-token", "", "Captcha response token")
	previewCmd.Flags().Bool("html", false, "Print sanitized HTML instead of plain text")
	CommentsCmd.AddCommand(previewCmd)
}
