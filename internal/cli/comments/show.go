package comments

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"commenthub/internal/cli/app"
	"commenthub/pkg/models"
	"commenthub/pkg/utils"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a comment with its replies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid comment id %q", args[0])
		}
		a, err := app.From(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := utils.WithTimeout(cmd.Context())
		defer cancel()

		c, err := a.Comments.FetchCommentDetail(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load comment %d: %s", id, models.Message(err))
		}
		fmt.Println()
		printComment(c, 0)

		withText, _ := cmd.Flags().GetBool("attachments")
		if !withText {
			return nil
		}
		for _, att := range collectAttachments(c) {
			if !strings.HasSuffix(strings.ToLower(att.FileRef), ".txt") {
				continue
			}
			body, err := a.Client.FetchText(ctx, att.FileRef)
			if err != nil {
				fmt.Printf("\n--- %s (unavailable: %s)\n", att.FileRef, models.Message(err))
				continue
			}
			fmt.Printf("\n--- %s\n%s\n", att.FileRef, body)
		}
		return nil
	},
}

func collectAttachments(c *models.Comment) []models.Attachment {
	out := append([]models.Attachment(nil), c.Attachments...)
	for _, r := range c.Replies {
		out = append(out, collectAttachments(r)...)
	}
	return out
}

func init() {
	showCmd.Flags().Bool("attachments", false, "Print the contents of text attachments")
	CommentsCmd.AddCommand(showCmd)
}
