package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/reactor/pkg/protocol"
	"github.com/vango-dev/reactor/pkg/snapshot"
	"github.com/vango-dev/reactor/pkg/viewer"
)

func snapshotCmd(configDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Archive and inspect tree snapshots",
		Long: `Archive the rendered tree to the snapshot store configured in
reactor.json (a directory, or an S3 bucket), and inspect what is there.`,
	}

	cmd.AddCommand(
		snapshotSaveCmd(configDir),
		snapshotListCmd(configDir),
		snapshotGetCmd(configDir),
		snapshotCleanupCmd(configDir),
	)
	return cmd
}

func snapshotSaveCmd(configDir *string) *cobra.Command {
	var (
		name  string
		from  string
		steps int
		seed  uint64
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Capture the tree and store it",
		Long: `Capture a tree and store its markup.

Without --from, the demo is built locally and edited --steps times first.
With --from, the tree is taken from a running mirror.

Examples:
  reactor snapshot save --steps=50
  reactor snapshot save --from=http://localhost:3000 --name=prod`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := loadConfig(*configDir)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}

			var markup []byte
			if from != "" {
				markup, err = captureRemote(ctx, from)
			} else {
				markup, err = captureLocal(ctx, *configDir, steps, seed)
			}
			if err != nil {
				return err
			}

			key, err := store.Put(ctx, name, markup)
			if err != nil {
				return err
			}
			success("Saved %s (%d bytes)", key, len(markup))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "demo", "Snapshot name")
	cmd.Flags().StringVar(&from, "from", "", "Capture from the mirror at this URL")
	cmd.Flags().IntVar(&steps, "steps", 0, "Demo edits to apply before a local capture")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Seed for the demo edits")

	return cmd
}

func captureLocal(ctx context.Context, configDir string, steps int, seed uint64) ([]byte, error) {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return nil, err
	}
	st, err := newStack(ctx, cfg, stackOptions{seed: seed, quiet: true})
	if err != nil {
		return nil, err
	}
	for i := 0; i < steps; i++ {
		if _, err := st.app.Step(); err != nil {
			return nil, err
		}
	}
	markup := snapshot.Capture(st.app.Root())
	return markup, st.close(ctx)
}

func captureRemote(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c, err := viewer.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	for c.Replica().Root() == nil {
		ft, err := c.Next(ctx)
		if err != nil {
			return nil, err
		}
		if ft == protocol.FrameError {
			return nil, fmt.Errorf("mirror at %s reported an error", url)
		}
	}
	return snapshot.Capture(c.Replica().Root()), nil
}

func snapshotListCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := loadConfig(*configDir)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			infos, err := store.List(ctx)
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				info("No snapshots")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tSIZE\tCREATED")
			for _, in := range infos {
				fmt.Fprintf(w, "%s\t%d\t%s\n", in.Key, in.Size, in.CreatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
}

func snapshotGetCmd(configDir *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print or save a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := loadConfig(*configDir)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			markup, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = os.Stdout.Write(append(markup, '\n'))
				return err
			}
			if err := os.WriteFile(output, markup, 0644); err != nil {
				return err
			}
			success("Wrote %s", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func snapshotCleanupCmd(configDir *string) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete snapshots older than a given age",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := loadConfig(*configDir)
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			n, err := store.Cleanup(ctx, olderThan)
			if err != nil {
				return err
			}
			success("Removed %d snapshots older than %s", n, olderThan)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "Minimum age of removed snapshots")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
