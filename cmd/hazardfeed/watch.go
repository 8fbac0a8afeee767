package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/hazardfeed/pkg/client"
	"github.com/cuemby/hazardfeed/pkg/types"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow new posts and zone changes live",
	Long: `Print the current feed and then every new post and zone update as it
happens. The stream reconnects on its own if the server goes away.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backlog, _ := cmd.Flags().GetInt("backlog")
		maxBackoff, _ := cmd.Flags().GetDuration("max-backoff")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		feed := client.NewFeedView(newClient(cmd), client.WithBackoff(500*time.Millisecond, maxBackoff))
		done := make(chan error, 1)
		go func() { done <- feed.Run(ctx) }()

		w := &feedPrinter{seen: make(map[string]struct{}), backlog: backlog}
		for {
			select {
			case err := <-done:
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			case <-feed.Updates():
				w.print(feed.Posts(), feed.Zones())
			}
		}
	},
}

func init() {
	watchCmd.Flags().Int("backlog", 10, "Number of existing posts to show on start")
	watchCmd.Flags().Duration("max-backoff", 30*time.Second, "Longest wait between reconnect attempts")
	rootCmd.AddCommand(watchCmd)
}

// feedPrinter prints only what changed since the previous update
type feedPrinter struct {
	seen    map[string]struct{}
	zones   []types.Zone
	started bool
	backlog int
}

func (p *feedPrinter) print(posts []*types.Post, zones []types.Zone) {
	if !p.started {
		p.started = true
		for _, post := range posts {
			p.seen[post.ID] = struct{}{}
		}
		if n := min(p.backlog, len(posts)); n > 0 {
			for i := n - 1; i >= 0; i-- {
				printPost(posts[i])
			}
		}
		p.zones = zones
		fmt.Printf("-- %d zones, watching for changes (Ctrl+C to stop)\n", len(zones))
		return
	}

	var fresh []*types.Post
	for _, post := range posts {
		if _, ok := p.seen[post.ID]; ok {
			continue
		}
		p.seen[post.ID] = struct{}{}
		fresh = append(fresh, post)
	}
	for i := len(fresh) - 1; i >= 0; i-- {
		printPost(fresh[i])
	}

	if !sameZones(p.zones, zones) {
		p.zones = zones
		fmt.Printf("-- zones updated: %d zones\n", len(zones))
		printZones(zones)
	}
}

func sameZones(a, b []types.Zone) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
