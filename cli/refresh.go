package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgerkit/recurring-engine/logging"
	"github.com/ledgerkit/recurring-engine/recurring"
	"github.com/ledgerkit/recurring-engine/store/sqlite"
)

// RefreshOptions holds flags for the refresh command.
type RefreshOptions struct {
	*RootOptions
	HorizonYears int
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RefreshOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Materialize missing instances for all active templates",
		Long: `Run one refresh pass over every active template, inserting any
instance months that are missing inside the materialization window.

Safe to run repeatedly: months that already have an instance are skipped.

Example:
  recurctl refresh --db ./recurring.db
  recurctl refresh --db ./recurring.db --horizon 3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.HorizonYears, "horizon", recurring.DefaultHorizonYears, "materialization window in years")

	return cmd
}

func runRefresh(opts *RefreshOptions, cmd *cobra.Command) error {
	store, err := sqlite.New(opts.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	log := logging.New(opts.Verbose)
	rec := recurring.NewReconciler(store, recurring.SystemClock{}, log)
	rec.HorizonYears = opts.HorizonYears

	summary, err := rec.OnPeriodicRefresh(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %d templates: %d instances generated, %d failed\n",
		summary.Templates, summary.Generated, summary.Failed)
	if summary.Failed > 0 {
		return fmt.Errorf("%d templates failed to refresh", summary.Failed)
	}
	return nil
}
