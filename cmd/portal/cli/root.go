// Package cli holds the portal command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the portal command with its subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "portal",
		Short: "Job-board portal front end",
		Long: `Server-rendered job-board portal. Sessions live in Redis, credentials are
exchanged with the job-board REST backend and routes are guarded by role.`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand(), newRoutesCommand(), newJobsCommand())
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
