package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"jizhang/internal/amqp"
	"jizhang/internal/ledger"
	"jizhang/internal/log"
	"jizhang/internal/report"
)

// NewTailCommand creates the tail command, which follows the AMQP change feed.
func NewTailCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print ledger changes published by a running server",
		Long: `Consume the change feed that "jizhang serve" publishes to AMQP_URL and
print one line per change until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != FormatTable && output != FormatJSON {
				return fmt.Errorf("invalid output format %q: must be table or json", output)
			}
			cfg := rootOpts.cfg
			if cfg.AMQPURL == "" {
				return errors.New("AMQP_URL is not set")
			}

			logger := rootOpts.logger.WithComponent(log.ComponentAMQP)
			client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
			if err != nil {
				return fmt.Errorf("connect to broker: %w", err)
			}
			defer client.Close()

			parent, stop := context.WithCancel(cmd.Context())
			ctx, done := GracefulShutdown(parent, logger, 5*time.Second, nil)
			defer func() {
				stop()
				<-done
			}()

			out := cmd.OutOrStdout()
			err = client.ConsumeChanges(ctx, func(_ context.Context, msg *amqp.ChangeMessage) error {
				return printChange(out, output, msg)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", FormatTable, "output format (table|json)")
	return cmd
}

func printChange(w io.Writer, format string, msg *amqp.ChangeMessage) error {
	if format == FormatJSON {
		return json.NewEncoder(w).Encode(msg)
	}

	at := msg.At.Local().Format(time.DateTime)
	var err error
	switch msg.Kind {
	case ledger.ExpenseAdded, ledger.ExpenseEdited:
		if e := msg.Expense; e != nil {
			_, err = fmt.Fprintf(w, "%s  %-15s %s  %s  %s  %s %s\n",
				at, msg.Kind, e.ID, e.Date, e.Category, report.FormatCNY(e.Amount), e.Description)
			break
		}
		_, err = fmt.Fprintf(w, "%s  %-15s %s\n", at, msg.Kind, msg.ExpenseID)
	case ledger.ExpenseDeleted:
		_, err = fmt.Fprintf(w, "%s  %-15s %s\n", at, msg.Kind, msg.ExpenseID)
	case ledger.BudgetSet:
		budget := "-"
		if msg.Budget != nil {
			budget = report.FormatCNY(*msg.Budget)
		}
		_, err = fmt.Fprintf(w, "%s  %-15s %s  %s\n", at, msg.Kind, msg.Month, budget)
	default:
		_, err = fmt.Fprintf(w, "%s  %s\n", at, msg.Kind)
	}
	return err
}
