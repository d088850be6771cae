package export

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/internal/template"
)

// WriteCSV writes the template table for rec to w.
func WriteCSV(w io.Writer, rec *model.CombinedRecord, tmpl *template.Template) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(Rows(rec, tmpl)); err != nil {
		return eris.Wrap(err, "export: write csv")
	}
	return nil
}
