package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"jizhang/internal/config"
	"jizhang/internal/log"
)

// RootOptions holds global flags and the state every command shares once the
// root command has loaded the configuration.
type RootOptions struct {
	EnvFile string
	Verbose bool

	cfg    *config.Config
	logger *log.Logger
}

// Config returns the loaded configuration. It is nil before the root command ran.
func (o *RootOptions) Config() *config.Config {
	return o.cfg
}

// NewRootCommand creates the root command for the jizhang CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "jizhang",
		Short: "jizhang - personal expense and budget ledger",
		Long: `Record daily expenses, set monthly budgets and see where the money goes.

Configuration comes from the environment (DATA_BACKEND, DATA_DIR, SQLITE_DB_PATH,
GEMINI_API_KEY, AMQP_URL, ...) and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "environment file to load")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewBudgetCommand(opts))
	cmd.AddCommand(NewOverviewCommand(opts))
	cmd.AddCommand(NewBreakdownCommand(opts))
	cmd.AddCommand(NewSuggestCommand(opts))
	cmd.AddCommand(NewTailCommand(opts))

	return cmd
}

func (o *RootOptions) setup(cmd *cobra.Command) error {
	if err := LoadEnvFile(o.EnvFile); err != nil {
		return err
	}
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return err
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}

	// Logs go to stderr so command output stays machine readable.
	o.cfg = cfg
	o.logger = SetupLogger(cfg, cmd.ErrOrStderr())
	o.logger.DebugContext(cmd.Context(), "Configuration loaded",
		"backend", cfg.DataBackend,
		"suggest", cfg.SuggestEnabled(),
		"amqp", cfg.AMQPURL != "",
		"level", log.ParseLevel(cfg.LogLevel).String())
	return nil
}

// validateFormat rejects output formats other than table, json and yaml.
func validateFormat(format string) error {
	for _, f := range ValidFormats {
		if f == format {
			return nil
		}
	}
	return fmt.Errorf("invalid output format %q: must be one of %v", format, ValidFormats)
}
