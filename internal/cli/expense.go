package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"jizhang/internal/core"
	"jizhang/internal/ledger"
	"jizhang/internal/log"
)

// expenseFlags are the field flags shared by add and edit.
type expenseFlags struct {
	date        string
	amount      string
	category    string
	description string
}

func (f *expenseFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "expense date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVarP(&f.amount, "amount", "a", "", "amount in yuan, e.g. 12.50")
	cmd.Flags().StringVarP(&f.category, "category", "c", "", "category label, Chinese or English")
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "optional description")
}

// apply parses the flags the user set into in.
func (f *expenseFlags) apply(cmd *cobra.Command, in *core.ExpenseInput) error {
	if cmd.Flags().Changed("date") {
		d, err := core.ParseDate(strings.TrimSpace(f.date))
		if err != nil {
			return err
		}
		in.Date = d
	}
	if cmd.Flags().Changed("amount") {
		amount, err := core.ParseAmount(f.amount)
		if err != nil {
			return fmt.Errorf("%w: %q", err, f.amount)
		}
		in.Amount = amount
	}
	if cmd.Flags().Changed("category") {
		c, ok := core.ParseCategory(f.category)
		if !ok {
			return fmt.Errorf("%w: %q", core.ErrUnknownCategory, f.category)
		}
		in.Category = c
	}
	if cmd.Flags().Changed("description") {
		in.Description = strings.TrimSpace(f.description)
	}
	return nil
}

// withStore opens the ledger for the duration of fn.
func withStore(ctx context.Context, opts *RootOptions, fn func(store *ledger.Store) error) error {
	store, closeStore, err := OpenStore(ctx, opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(store)
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &expenseFlags{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an expense",
		Long: `Record an expense. Without --category the category is suggested from the
description, and falls back to 其他.`,
		Example: `  jizhang add -a 32.5 -c 餐饮 -d 午饭
  jizhang add --date 2024-03-01 -a 6 -d 地铁`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, rootOpts, flags)
		},
	}
	flags.register(cmd)
	cmd.MarkFlagRequired("amount")
	return cmd
}

func runAdd(cmd *cobra.Command, opts *RootOptions, flags *expenseFlags) error {
	ctx := cmd.Context()
	in := core.ExpenseInput{Date: core.DateOf(time.Now())}
	if err := flags.apply(cmd, &in); err != nil {
		return err
	}

	if in.Category == "" {
		in.Category = core.CategoryOther
		if in.Description != "" {
			in.Category = NewSuggestService(ctx, opts.cfg, opts.logger).SuggestCategory(ctx, in.Description)
			fmt.Fprintf(cmd.ErrOrStderr(), "suggested category: %s\n", in.Category)
		}
	}
	if err := in.Validate(); err != nil {
		return err
	}

	return withStore(ctx, opts, func(store *ledger.Store) error {
		exp := store.AddExpense(ctx, in)
		opts.logger.DebugContext(ctx, "Expense created",
			log.NewFields().
				WithOperation(log.OpCreate).
				WithExpense(exp.ID, exp.Date.String(), exp.Amount, string(exp.Category), len([]rune(exp.Description))).
				ToSlice()...)
		fmt.Fprintln(cmd.OutOrStdout(), exp.ID)
		return nil
	})
}

// NewEditCommand creates the edit command. Only the given flags change.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &expenseFlags{}

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of an expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, rootOpts, flags, args[0])
		},
	}
	flags.register(cmd)
	return cmd
}

func runEdit(cmd *cobra.Command, opts *RootOptions, flags *expenseFlags, id string) error {
	ctx := cmd.Context()
	return withStore(ctx, opts, func(store *ledger.Store) error {
		current, ok := store.Expense(id)
		if !ok {
			return fmt.Errorf("expense %s not found", id)
		}

		in := current.Input()
		if err := flags.apply(cmd, &in); err != nil {
			return err
		}
		if err := in.Validate(); err != nil {
			return err
		}

		store.EditExpense(ctx, id, in)
		opts.logger.DebugContext(ctx, "Expense updated", log.FieldOperation, log.OpUpdate, log.FieldExpenseID, id)
		return nil
	})
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an expense",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, rootOpts, func(store *ledger.Store) error {
				if !store.DeleteExpense(ctx, args[0]) {
					return fmt.Errorf("expense %s not found", args[0])
				}
				rootOpts.logger.DebugContext(ctx, "Expense deleted",
					log.FieldOperation, log.OpDelete, log.FieldExpenseID, args[0])
				return nil
			})
		},
	}
}

type listOptions struct {
	month  string
	limit  int
	output string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List expenses, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.month, "month", "m", "", "only expenses of this month (YYYY-MM)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "show at most n expenses")
	cmd.Flags().StringVarP(&opts.output, "output", "o", FormatTable, "output format (table|json|yaml)")
	return cmd
}

func runList(cmd *cobra.Command, rootOpts *RootOptions, opts *listOptions) error {
	if err := validateFormat(opts.output); err != nil {
		return err
	}
	var month core.Month
	if opts.month != "" {
		m, err := core.ParseMonth(opts.month)
		if err != nil {
			return fmt.Errorf("%w: %q", err, opts.month)
		}
		month = m
	}

	return withStore(cmd.Context(), rootOpts, func(store *ledger.Store) error {
		expenses := store.Expenses()
		if !month.IsZero() {
			expenses = store.MonthlyExpenses(month.Year, month.Month)
		}
		if opts.limit > 0 && len(expenses) > opts.limit {
			expenses = expenses[:opts.limit]
		}

		return render(cmd.OutOrStdout(), opts.output, expenses, func(tw *tabwriter.Writer) {
			expenseTable(tw, expenses)
		})
	})
}
