package export

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/internal/template"
)

// Format selects an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", eris.Errorf("export: unknown format %q (want csv, xlsx or json)", s)
}

// Ext returns the file extension for the format, with the dot.
func (f Format) Ext() string { return "." + string(f) }

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

// Write encodes result to w in the given format.
func Write(w io.Writer, format Format, result *model.DocumentResult, tmpl *template.Template) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, result.Record, tmpl)
	case FormatXLSX:
		return WriteXLSX(w, result.Record, tmpl)
	case FormatJSON:
		return WriteJSON(w, result)
	}
	return eris.Errorf("export: unknown format %q", format)
}

// WriteFile writes result to path, creating parent directories.
func WriteFile(path string, format Format, result *model.DocumentResult, tmpl *template.Template) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := Write(f, format, result, tmpl); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// OutputPath derives the output file for a document written into dir.
func OutputPath(dir string, doc model.Document, format Format) string {
	base := strings.TrimSuffix(doc.Name, filepath.Ext(doc.Name))
	if base == "" {
		base = "statement"
	}
	return filepath.Join(dir, base+format.Ext())
}
