package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"jizhang/internal/core"
	"jizhang/internal/ledger"
	"jizhang/internal/report"
)

// NewOverviewCommand creates the overview command.
func NewOverviewCommand(rootOpts *RootOptions) *cobra.Command {
	var month, output string

	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Monthly total, budget progress and category totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			m := core.MonthOf(time.Now())
			if month != "" {
				parsed, err := core.ParseMonth(month)
				if err != nil {
					return fmt.Errorf("%w: %q", err, month)
				}
				m = parsed
			}

			return withStore(cmd.Context(), rootOpts, func(store *ledger.Store) error {
				view := store.Overview(m)
				return render(cmd.OutOrStdout(), output, view, func(tw *tabwriter.Writer) {
					fmt.Fprintf(tw, "%s\t总支出 %s\n", view.Label, report.FormatCNY(view.Total))
					if view.Budget.HasBudget {
						fmt.Fprintf(tw, "预算\t%s (%.0f%%)\n", report.FormatCNY(view.Budget.Budget), view.Budget.Progress)
					}
					fmt.Fprintf(tw, "%s\t\n\n", view.Message)
					categoryTable(tw, view.Categories, view.Total)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&month, "month", "m", "", "month to show (YYYY-MM, default current)")
	cmd.Flags().StringVarP(&output, "output", "o", FormatTable, "output format (table|json|yaml)")
	return cmd
}

// NewBreakdownCommand creates the breakdown command.
func NewBreakdownCommand(rootOpts *RootOptions) *cobra.Command {
	var month, output string

	cmd := &cobra.Command{
		Use:   "breakdown",
		Short: "Category distribution for a month or all time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			return withStore(cmd.Context(), rootOpts, func(store *ledger.Store) error {
				view, err := report.Breakdown(store.Expenses(), month)
				if err != nil {
					return fmt.Errorf("%w: %q", err, month)
				}
				return render(cmd.OutOrStdout(), output, view, func(tw *tabwriter.Writer) {
					fmt.Fprintf(tw, "%s\t\n\n", view.Label)
					categoryTable(tw, view.Categories, view.Total)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&month, "month", "m", report.AllTime, "month (YYYY-MM) or all")
	cmd.Flags().StringVarP(&output, "output", "o", FormatTable, "output format (table|json|yaml)")
	return cmd
}
