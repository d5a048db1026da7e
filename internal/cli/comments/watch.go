package comments

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"commenthub/internal/cli/app"
	"commenthub/pkg/logger"
	"commenthub/pkg/models"
	"commenthub/pkg/utils"
)

var watchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Follow new replies to a comment",
	Long:  "Load a comment and print replies as they arrive over the live channel. Stop with Ctrl+C.",
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

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			srv := serveMetrics(addr, a)
			defer srv.Close()
		}

		ctx := cmd.Context()
		loadCtx, cancel := utils.WithTimeout(ctx)
		root, err := a.Comments.FetchCommentDetail(loadCtx, id)
		if err == nil {
			err = a.Comments.ConnectLiveChannel(loadCtx, id)
		}
		cancel()
		if err != nil {
			return fmt.Errorf("failed to watch comment %d: %s", id, models.Message(err))
		}
		defer a.Comments.DisconnectLiveChannel()

		fmt.Println()
		printComment(root, 0)
		fmt.Printf("\nWatching #%d for replies...\n\n", id)

		seen := make(map[int64]bool)
		markSeen(root, seen)
		lastErr := ""
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-a.Comments.Changes():
			}

			if msg := a.Comments.LastError(); msg != "" && msg != lastErr {
				fmt.Printf("! %s\n", msg)
				lastErr = msg
			}
			detail := a.Comments.Detail()
			if detail == nil {
				continue
			}
			printNew(detail, 0, seen)
			if a.Comments.LiveCommentID() == 0 {
				return errors.New("live channel closed")
			}
		}
	},
}

func markSeen(c *models.Comment, seen map[int64]bool) {
	seen[c.ID] = true
	for _, r := range c.Replies {
		markSeen(r, seen)
	}
}

// printNew prints replies not printed before, with their position in the tree
func printNew(c *models.Comment, depth int, seen map[int64]bool) {
	if !seen[c.ID] {
		seen[c.ID] = true
		printComment(&models.Comment{
			ID:          c.ID,
			Author:      c.Author,
			Text:        c.Text,
			CreatedAt:   c.CreatedAt,
			Attachments: c.Attachments,
		}, depth)
	}
	for _, r := range c.Replies {
		printNew(r, depth+1, seen)
	}
}

func serveMetrics(addr string, a *app.App) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warnf("Metrics server stopped: %v", err)
		}
	}()
	logger.Infof("Serving metrics on %s/metrics", addr)
	return srv
}

func init() {
	watchCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")
	CommentsCmd.AddCommand(watchCmd)
}

