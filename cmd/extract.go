package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/statement-cli/internal/export"
)

var (
	extractOutput   string
	extractFormat   string
	extractTemplate string
	extractUpload   bool
	extractNoStore  bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <pdf|page-dir>",
	Short: "Extract statement fields from one document",
	Long:  "Runs one PDF (or a directory of pre-rendered page images) through classification, year detection, extraction and combination, then writes the template export.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		format, err := export.ParseFormat(extractFormat)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, envOptions{
			templatePath: extractTemplate,
			noStore:      extractNoStore,
			withStorage:  extractUpload,
		})
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "extract")
		}

		path, _, err := writeResult(ctx, env, result, extractOutput, format)
		if err != nil {
			return err
		}

		formatSummary(os.Stdout, result, path)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", ".", "output directory")
	extractCmd.Flags().StringVarP(&extractFormat, "format", "f", "csv", "output format: csv, xlsx or json")
	extractCmd.Flags().StringVar(&extractTemplate, "template", "", "field template YAML (default: built in)")
	extractCmd.Flags().BoolVar(&extractUpload, "upload", false, "upload the output to configured artifact storage")
	extractCmd.Flags().BoolVar(&extractNoStore, "no-store", false, "do not record the run or use the page cache")
	rootCmd.AddCommand(extractCmd)
}
