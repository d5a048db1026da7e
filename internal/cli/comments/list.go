package comments

import (
	"fmt"

	"github.com/spf13/cobra"

	"commenthub/internal/cli/app"
	synccomments "commenthub/internal/comments"
	"commenthub/internal/render"
	"commenthub/pkg/models"
	"commenthub/pkg/utils"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List top-level comments",
	Long: "List top-level comments, newest first by default.\n" +
		"Ordering keys: created_at, user__username, user__email (prefix - for descending).",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.From(cmd)
		if err != nil {
			return err
		}

		page, _ := cmd.Flags().GetInt("page")
		pages, _ := cmd.Flags().GetInt("pages")
		ordering, _ := cmd.Flags().GetString("ordering")
		search, _ := cmd.Flags().GetString("search")
		previews, _ := cmd.Flags().GetBool("previews")

		ctx, cancel := utils.WithTimeout(cmd.Context())
		defer cancel()

		if previews {
			result, err := a.Client.ListPreviews(ctx, page)
			if err != nil {
				return fmt.Errorf("failed to list previews: %s", models.Message(err))
			}
			fmt.Printf("\n%d comments:\n\n", result.Count)
			for _, p := range result.Results {
				fmt.Printf("#%d %s  %s\n", p.ID, stamp(p.CreatedAt), render.PlainText(p.Text))
			}
			return nil
		}

		opts := []synccomments.FetchOption{synccomments.WithSearch(search)}
		if ordering != "" {
			opts = append(opts, synccomments.WithOrdering(ordering))
		}
		if pages < 1 {
			pages = 1
		}
		for p := page; p < page+pages; p++ {
			if err := a.Comments.FetchComments(ctx, p, opts...); err != nil {
				return fmt.Errorf("failed to list comments: %s", models.Message(err))
			}
			if len(a.Comments.Listing().Items) >= a.Comments.Listing().TotalCount {
				break
			}
		}

		listing := a.Comments.Listing()
		fmt.Printf("\nShowing %d of %d comments (ordering %s", len(listing.Items), listing.TotalCount, listing.SortKey)
		if listing.SearchQuery != "" {
			fmt.Printf(", search %q", listing.SearchQuery)
		}
		fmt.Printf("):\n\n")
		for _, c := range listing.Items {
			printComment(c, 0)
			fmt.Println()
		}
		return nil
	},
}

func init() {
	listCmd.Flags().Int("page", 1, "First page to load")
	listCmd.Flags().Int("pages", 1, "Number of pages to load")
	listCmd.Flags().String("ordering", "", "Sort key, default -created_at")
	listCmd.Flags().String("search", "", "Filter by author username or email")
	listCmd.Flags().Bool("previews", false, "List compact previews instead")
	CommentsCmd.AddCommand(listCmd)
}
