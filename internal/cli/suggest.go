package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewSuggestCommand creates the suggest command.
func NewSuggestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "suggest <description>",
		Short:   "Suggest a category for a description",
		Example: "  jizhang suggest 星巴克 拿铁",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc := NewSuggestService(ctx, rootOpts.cfg, rootOpts.logger)
			fmt.Fprintln(cmd.OutOrStdout(), svc.SuggestCategory(ctx, strings.Join(args, " ")))
			return nil
		},
	}
}
