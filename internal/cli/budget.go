package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"jizhang/internal/core"
	"jizhang/internal/ledger"
	"jizhang/internal/log"
	"jizhang/internal/report"
)

// NewBudgetCommand creates the budget command group.
func NewBudgetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show or set monthly budgets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "set <YYYY-MM> <amount>",
		Short:   "Set the budget of a month; 0 is a valid budget",
		Example: "  jizhang budget set 2024-03 3000",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := core.ParseMonth(args[0])
			if err != nil {
				return fmt.Errorf("%w: %q", err, args[0])
			}
			amount, err := core.ParseBudgetAmount(args[1])
			if err != nil {
				return fmt.Errorf("%w: %q", err, args[1])
			}

			ctx := cmd.Context()
			return withStore(ctx, rootOpts, func(store *ledger.Store) error {
				store.SetBudget(ctx, month, amount)
				rootOpts.logger.DebugContext(ctx, "Budget set",
					log.FieldOperation, log.OpSetBudget, log.FieldMonth, month.String(), log.FieldBudget, amount)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get [YYYY-MM]",
		Short: "Show the budget and spending of a month, default the current one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			month := core.MonthOf(time.Now())
			if len(args) == 1 {
				m, err := core.ParseMonth(args[0])
				if err != nil {
					return fmt.Errorf("%w: %q", err, args[0])
				}
				month = m
			}

			return withStore(cmd.Context(), rootOpts, func(store *ledger.Store) error {
				status := store.BudgetProgress(month)
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s\n", report.MonthLabel(month))
				if status.HasBudget {
					fmt.Fprintf(out, "预算: %s  已花费: %s  (%.0f%%)\n",
						report.FormatCNY(status.Budget), report.FormatCNY(status.Total), status.Progress)
				} else {
					fmt.Fprintf(out, "已花费: %s\n", report.FormatCNY(status.Total))
				}
				fmt.Fprintln(out, report.BudgetMessage(status))
				return nil
			})
		},
	})

	return cmd
}
