package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╦═╗┌─┐┌─┐┌─┐┌┬┐┌─┐┬─┐
  ╠╦╝├┤ ├─┤│   │ │ │├┬┘
  ╩╚═└─┘┴ ┴└─┘ ┴ └─┘┴└─
`

func main() {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "reactor",
		Short: "A fine-grained reactive runtime with a live tree mirror",
		Long: `Reactor runs a reactive application whose DOM-like tree is kept up to
date by keyed reconciliation, and mirrors that tree to WebSocket viewers.

  • Cells, derived values and effects with batched settles
  • Show and For blocks with owned, disposable scopes
  • Five-phase keyed array reconciler
  • Sequenced mutation batches with resume from history
  • Snapshots archived to disk or S3`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "Directory holding reactor.json")

	rootCmd.AddCommand(
		serveCmd(&configDir),
		watchCmd(),
		benchCmd(),
		snapshotCmd(&configDir),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
