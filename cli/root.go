/*
root.go - recurctl command tree

PURPOSE:
  Command-line access to the engine without running the HTTP server.
  Operates directly on a SQLite database file, sharing the same store
  and reconciler code paths as the server.

COMMANDS:
  refresh   Materialize missing instances for all active templates
  repair    Remove duplicate instances for a template or owner
  preview   Print the instances a template would generate, without writing

SEE ALSO:
  - cmd/recurctl/main.go: Entry point
  - api/handlers.go: The same operations over HTTP
*/
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Database string
	Verbose  bool
}

// NewRootCommand creates the root command for recurctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "recurctl",
		Short: "Recurring transaction engine control tool",
		Long:  "Operate on a recurring transaction database directly: refresh, repair, and preview without the HTTP server.",
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "recurring.db", "path to SQLite database")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewRepairCommand(opts))
	cmd.AddCommand(NewPreviewCommand(opts))

	return cmd
}
