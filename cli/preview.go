package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgerkit/recurring-engine/recurring"
	"github.com/ledgerkit/recurring-engine/store/sqlite"
)

// PreviewOptions holds flags for the preview command.
type PreviewOptions struct {
	*RootOptions
	TemplateID string
	Months     int
}

// NewPreviewCommand creates the preview command.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PreviewOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the instances a template would generate",
		Long: `Expand a template over a window and print the resulting instances
without writing anything to the database. Months that already have an
instance are skipped, so the output shows exactly what a refresh would add.

Example:
  recurctl preview --db ./recurring.db --template tpl-123
  recurctl preview --db ./recurring.db --template tpl-123 --months 6`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.TemplateID, "template", "", "template to preview (required)")
	cmd.Flags().IntVar(&opts.Months, "months", 12, "window length in months")
	_ = cmd.MarkFlagRequired("template")

	return cmd
}

func runPreview(opts *PreviewOptions, cmd *cobra.Command) error {
	store, err := sqlite.New(opts.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	tpl, err := store.GetTemplate(ctx, recurring.TemplateID(opts.TemplateID))
	if err != nil {
		return err
	}
	if tpl == nil {
		return fmt.Errorf("template %s not found", opts.TemplateID)
	}

	clock := recurring.SystemClock{}
	gen := recurring.NewGenerator(store, clock)

	start := clock.Now()
	end := start.AddDate(0, opts.Months, 0)
	instances, err := gen.Generate(ctx, *tpl, start, end)
	if err != nil {
		return err
	}

	if len(instances) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No missing instances in window")
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s, day %d): %d missing instances\n",
		tpl.Description, tpl.Kind, tpl.DayOfMonth, len(instances))
	for _, inst := range instances {
		fmt.Fprintf(out, "  %s  %s %s\n",
			inst.Date.Format("2006-01-02"), inst.Amount.StringFixed(2), inst.Kind)
	}
	return nil
}
