package export

import (
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/internal/template"
)

// SheetName is the worksheet the XLSX export writes to.
const SheetName = "Statements"

// numericFrom is the first column that holds numbers (Confidence).
const numericFrom = 4

// WriteXLSX writes the template table for rec as a single sheet workbook.
// Numeric cells are stored as numbers so spreadsheets can sum them.
func WriteXLSX(w io.Writer, rec *model.CombinedRecord, tmpl *template.Template) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	for i, cells := range Rows(rec, tmpl) {
		row := sheet.AddRow()
		for j, v := range cells {
			cell := row.AddCell()
			if i >= 2 && j >= numericFrom {
				if n, ok := number(v); ok {
					cell.SetFloat(n)
					continue
				}
			}
			cell.SetString(v)
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

func number(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	return n, err == nil
}
