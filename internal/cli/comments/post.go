package comments

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"commenthub/internal/api"
	"commenthub/internal/cli/app"
	"commenthub/pkg/models"
	"commenthub/pkg/utils"
)

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Post a comment or a reply",
	Long: "Post a comment. The text comes from --text, or stdin when --text is \"-\".\n" +
		"The service requires a captcha response token; pass it with --captcha-token\n" +
		"or COMMENTHUB_CAPTCHA_TOKEN.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.From(cmd)
		if err != nil {
			return err
		}

		text, _ := cmd.Flags().GetString("text")
		if text == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read text: %w", err)
			}
			text = string(data)
		}
		text = strings.TrimSpace(text)

		challenge, _ := cmd.Flags().GetString("captcha-token")
		if challenge == "" {
			challenge = os.Getenv("COMMENTHUB_CAPTCHA_TOKEN")
		}

		nc := api.NewComment{Text: text, ChallengeToken: challenge}
		if cmd.Flags().Changed("reply") {
			parent, _ := cmd.Flags().GetInt64("reply")
			nc.ParentID = &parent
		}

		paths, _ := cmd.Flags().GetStringArray("file")
		for _, p := range paths {
			f, err := os.Open(p)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", p, err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", p, err)
			}
			nc.Files = append(nc.Files, api.Upload{FileName: filepath.Base(p), Size: info.Size(), Content: f})
		}

		ctx, cancel := utils.WithLongTimeout(cmd.Context())
		defer cancel()

		created, err := a.Comments.AddComment(ctx, nc)
		if err != nil {
			return fmt.Errorf("failed to post comment: %s", models.Message(err))
		}

		fmt.Println("✓ Comment posted")
		fmt.Printf("  ID: %d\n", created.ID)
		if created.ParentID != nil {
			fmt.Printf("  In reply to: #%d\n", *created.ParentID)
		}
		for _, att := range created.Attachments {
			fmt.Printf("  Attachment: %s\n", att.FileRef)
		}
		return nil
	},
}

func init() {
	postCmd.Flags().String("text", "", "Comment text (\"-\" reads stdin)")
	postCmd.Flags().Int64("reply", 0, "Parent comment id")
	postCmd.Flags().StringArray("file", nil, "Attach a file (.txt up to 100 KiB, .jpg/.jpeg/.png/.gif up to 5 MiB); repeatable")
	postCmd.Flags().String("captcha-token", "", "Captcha response token")
	CommentsCmd.AddCommand(postCmd)
}
