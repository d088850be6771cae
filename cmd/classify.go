package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/statement-cli/internal/model"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <pdf|page-dir>",
	Short: "Classify pages without extracting fields",
	Long:  "Prints per-page statement scores and labels. Useful as a cheap dry run before a full extraction.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		noStore, _ := cmd.Flags().GetBool("no-store")
		env, err := initPipeline(ctx, envOptions{noStore: noStore})
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Classify(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "classify")
		}

		formatClassifications(os.Stdout, result.Classifications)
		for _, e := range result.Errors {
			_, _ = fmt.Fprintf(os.Stderr, "warning: %s\n", e)
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().Bool("no-store", false, "skip the page cache")
	rootCmd.AddCommand(classifyCmd)
}

// formatClassifications writes one row per page with its four scores and label.
func formatClassifications(out io.Writer, classes []model.PageClassification) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PAGE\tBS\tIS\tCF\tES\tLABEL")
	_, _ = fmt.Fprintln(w, "----\t--\t--\t--\t--\t-----")
	for _, c := range classes {
		label := string(c.Label)
		if c.Error != "" {
			label += " (failed)"
		}
		_, _ = fmt.Fprintf(w, "%d\t%.0f\t%.0f\t%.0f\t%.0f\t%s\n",
			c.PageNum,
			c.Scores.BalanceSheet,
			c.Scores.IncomeStatement,
			c.Scores.CashFlow,
			c.Scores.EquityStatement,
			label,
		)
	}
	_ = w.Flush()
}
