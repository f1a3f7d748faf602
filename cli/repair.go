package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgerkit/recurring-engine/logging"
	"github.com/ledgerkit/recurring-engine/recurring"
	"github.com/ledgerkit/recurring-engine/store/sqlite"
)

// RepairOptions holds flags for the repair command.
type RepairOptions struct {
	*RootOptions
	TemplateID string
	OwnerID    string
}

// NewRepairCommand creates the repair command.
func NewRepairCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RepairOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Remove duplicate instances for a template or owner",
		Long: `Scan for months where a template has more than one instance and
delete the extras, keeping one survivor per month. Completed instances
outrank pending ones as the survivor.

Exactly one of --template or --owner must be given.

Example:
  recurctl repair --db ./recurring.db --template tpl-123
  recurctl repair --db ./recurring.db --owner owner-alice`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepair(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.TemplateID, "template", "", "repair one template's instances")
	cmd.Flags().StringVar(&opts.OwnerID, "owner", "", "repair all templates for one owner")

	return cmd
}

func runRepair(opts *RepairOptions, cmd *cobra.Command) error {
	store, err := sqlite.New(opts.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	log := logging.New(opts.Verbose)
	repairer := recurring.NewRepairer(store, log)

	report, err := repairer.Repair(cmd.Context(), recurring.RepairScope{
		TemplateID: recurring.TemplateID(opts.TemplateID),
		OwnerID:    recurring.OwnerID(opts.OwnerID),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Inspected %d groups: %d duplicates removed, %d failed\n",
		report.Groups, report.Removed, report.Failed)
	if report.Failed > 0 {
		return fmt.Errorf("%d groups failed to repair", report.Failed)
	}
	return nil
}
