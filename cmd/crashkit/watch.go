// watch.go keeps flushing while payloads keep landing on disk.

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/strongdm/ai-crashkit/pkg/crashkit/flush"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Deliver stored payloads whenever new ones are written, until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := root.openClient()
			if err != nil {
				return err
			}
			defer c.Close()
			if c.EventsDirectory() == "" {
				return errors.New("persistence is disabled: set persistence.directory")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Deliver the existing backlog before waiting on new files.
			c.FlushStored()
			cmd.Printf("watching %s and %s\n", c.EventsDirectory(), c.SessionsDirectory())

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return flush.NewWatcher(c.EventsDirectory(), c.EventFlusher(), debounce).Run(ctx)
			})
			g.Go(func() error {
				return flush.NewWatcher(c.SessionsDirectory(), c.SessionFlusher(), debounce).Run(ctx)
			})
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 250*time.Millisecond, "quiet period before a burst of writes triggers a flush")
	return cmd
}
