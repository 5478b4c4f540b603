package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"jizhang/internal/core"
	"jizhang/internal/report"
)

// Output formats accepted by -o.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{FormatTable, FormatJSON, FormatYAML}

// render writes v as JSON or YAML, or calls table with a tab-aligned writer.
func render(w io.Writer, format string, v any, table func(tw *tabwriter.Writer)) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	}
}

func expenseTable(tw *tabwriter.Writer, expenses []core.Expense) {
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tAMOUNT\tDESCRIPTION")
	for _, e := range expenses {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Date, e.Category, report.FormatCNY(e.Amount), e.Description)
	}
}

func categoryTable(tw *tabwriter.Writer, totals []report.CategoryTotal, total float64) {
	fmt.Fprintln(tw, "CATEGORY\tTOTAL\tSHARE")
	for _, c := range totals {
		share := 0.0
		if total > 0 {
			share = c.Total / total * 100
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\n", c.Category, report.FormatCNY(c.Total), share)
	}
	fmt.Fprintf(tw, "总计\t%s\t\n", report.FormatCNY(total))
}
