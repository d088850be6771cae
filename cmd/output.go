package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/sells-group/statement-cli/internal/export"
	"github.com/sells-group/statement-cli/internal/model"
)

// writeResult exports result into outDir and, when artifact storage is
// configured, uploads the file. Upload failures are logged, not returned.
func writeResult(ctx context.Context, env *pipelineEnv, result *model.DocumentResult, outDir string, format export.Format) (string, string, error) {
	path := export.OutputPath(outDir, result.Document, format)
	if err := export.WriteFile(path, format, result, env.Template); err != nil {
		return "", "", err
	}

	var key string
	if env.Artifacts != nil {
		data, err := os.ReadFile(path)
		if err != nil {
			zap.L().Warn("upload skipped: read output", zap.String("path", path), zap.Error(err))
		} else {
			k := env.Artifacts.Key(result.RunID, filepath.Base(path))
			if err := env.Artifacts.Upload(ctx, k, data, format.ContentType()); err != nil {
				zap.L().Warn("upload failed", zap.String("key", k), zap.Error(err))
			} else {
				key = k
			}
		}
	}

	env.Pipeline.AttachOutput(ctx, result, path, key)
	return path, key, nil
}

// formatSummary writes a short human readable summary of one document result.
func formatSummary(out io.Writer, result *model.DocumentResult, path string) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Document:\t%s\n", result.Document.Name)
	if result.RunID != "" {
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", result.RunID)
	}
	_, _ = fmt.Fprintf(w, "Pages:\t%d (%d financial)\n", len(result.Classifications), len(result.FinancialPages()))
	years := fmt.Sprint(result.YearSet.Years())
	if result.YearsFallback {
		years += " (fallback)"
	}
	_, _ = fmt.Fprintf(w, "Years:\t%s\n", years)
	fields := 0
	if result.Record != nil {
		fields = len(result.Record.Entries)
	}
	_, _ = fmt.Fprintf(w, "Fields:\t%d\n", fields)
	_, _ = fmt.Fprintf(w, "Errors:\t%d\n", len(result.Errors))
	_, _ = fmt.Fprintf(w, "Tokens:\t%d\n", result.Usage.InputTokens+result.Usage.OutputTokens)
	_, _ = fmt.Fprintf(w, "Cost:\t$%.4f\n", result.Usage.Cost)
	if path != "" {
		_, _ = fmt.Fprintf(w, "Output:\t%s\n", path)
	}
	_ = w.Flush()

	for _, e := range result.Errors {
		_, _ = fmt.Fprintf(out, "  - %s\n", e)
	}
}
