package comments

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"commenthub/internal/render"
	"commenthub/pkg/models"
	"commenthub/pkg/utils"
)

var CommentsCmd = &cobra.Command{
	Use:     "comments",
	Aliases: []string{"c"},
	Short:   "Comment commands",
	Long:    "Browse, post, and follow comments",
}

// stamp renders t for the terminal, e.g. "Mon 18:05 (2 days ago)"
func stamp(t time.Time) string {
	now := time.Now()
	return fmt.Sprintf("%s (%s)", utils.FormatTimestamp(t, now), utils.TimeAgo(t, now))
}

// printComment writes c and its replies as an indented tree
func printComment(c *models.Comment, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Printf("%s#%d %s <%s> %s\n", indent, c.ID, c.Author.Username, c.Author.Email, stamp(c.CreatedAt))
	for _, line := range strings.Split(render.PlainText(c.Text), "\n") {
		fmt.Printf("%s  %s\n", indent, line)
	}
	for _, a := range c.Attachments {
		fmt.Printf("%s  [%s] %s\n", indent, a.MediaType, a.FileRef)
	}
	for _, r := range c.Replies {
		printComment(r, depth+1)
	}
}
