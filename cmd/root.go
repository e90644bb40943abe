// Package cmd defines and implements the CLI commands for the harvester
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Incrementally harvests labeled article records from paginated listings.",
		Long: `harvester walks a publisher's content listing (numbered offset pages or a
single infinite-scroll page), fetches each article's detail page under a
bounded concurrency budget, and appends every record exactly once to a pair
of JSONL/CSV output files.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newOffsetCmd())
	cmd.AddCommand(newScrollCmd())

	return cmd
}

// Execute is the main entry point. The process exits non-zero only when a
// run could not start or had to abort; a naturally exhausted crawl exits 0.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
