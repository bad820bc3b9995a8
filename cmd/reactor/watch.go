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

	"github.com/vango-dev/reactor/pkg/protocol"
	"github.com/vango-dev/reactor/pkg/viewer"
)

func watchCmd() *cobra.Command {
	var (
		quiet   bool
		retries int
	)

	cmd := &cobra.Command{
		Use:   "watch [url]",
		Short: "Follow a running mirror from the terminal",
		Long: `Connect to a mirror and print its markup after every batch.

When the connection drops, watch reconnects and resumes from the last
batch it applied.

Examples:
  reactor watch
  reactor watch http://localhost:8080 --quiet`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := "http://localhost:3000"
			if len(args) == 1 {
				url = args[0]
			}
			return runWatch(url, quiet, retries)
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print one line per batch instead of the markup")
	cmd.Flags().IntVar(&retries, "retries", 5, "Reconnect attempts after a dropped connection")

	return cmd
}

func runWatch(url string, quiet bool, retries int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := viewer.Dial(ctx, url)
	if err != nil {
		return err
	}
	success("Connected to %s", url)

	attempt := 0
	for {
		ft, err := c.Next(ctx)
		switch {
		case err == nil:
			attempt = 0
			if ft != protocol.FrameSnapshot && ft != protocol.FrameMutations {
				continue
			}
			if quiet {
				s := c.Stats()
				info("seq %d  batches %d  mutations %d  bytes %d", c.Replica().Seq(), s.Batches, s.Mutations, s.Bytes)
			} else {
				fmt.Printf("\033[2m-- seq %d --\033[0m\n%s\n", c.Replica().Seq(), c.Replica().Markup())
			}

		case errors.Is(err, context.Canceled):
			c.Close()
			return nil

		case viewer.IsClosed(err):
			c.Close()
			warn("%v", err)
			return nil

		default:
			c.Close()
			if attempt >= retries {
				return err
			}
			attempt++
			warn("Connection lost (%v), resuming from seq %d", err, c.Replica().Seq())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
			next, derr := viewer.Resume(ctx, url, c.Replica())
			if derr != nil {
				errorMsg("Reconnect failed: %v", derr)
				continue
			}
			c = next
		}
	}
}
