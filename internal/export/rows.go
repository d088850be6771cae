// Package export writes a combined statement record in the template layout
// as CSV, XLSX or JSON.
package export

import (
	"strconv"
	"strings"

	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/internal/template"
)

// Header is the first row of every tabular export.
var Header = []string{
	"Category",
	"Subcategory",
	"Field",
	"Source_Page",
	"Confidence",
	"Value_Year_1",
	"Value_Year_2",
	"Value_Year_3",
	"Value_Year_4",
}

const extraSubcategory = "Other"

// Rows builds the full table: the header, the year mapping row, one row per
// template field in template order, then fields the template does not know,
// sorted by name. Missing values are empty strings.
func Rows(rec *model.CombinedRecord, tmpl *template.Template) [][]string {
	if tmpl == nil {
		tmpl = template.Default()
	}
	var ys model.YearSet
	if rec != nil {
		ys = rec.YearSet
	}

	rows := make([][]string, 0, tmpl.Len()+2)
	rows = append(rows, append([]string(nil), Header...))
	rows = append(rows, yearRow(ys))

	for _, f := range tmpl.Fields() {
		rows = append(rows, fieldRow(f.Category, f.Subcategory, f.Name, rec.Entry(f.Name)))
	}
	for _, name := range tmpl.Extras(rec.Fields()) {
		e := rec.Entry(name)
		rows = append(rows, fieldRow(e.Source.Title(), extraSubcategory, name, e))
	}
	return rows
}

func yearRow(ys model.YearSet) []string {
	row := []string{"Date", "Year", "Year", "", "0.0"}
	for i := 0; i < model.MaxYears; i++ {
		row = append(row, ys.At(i))
	}
	return row
}

func fieldRow(category, subcategory, name string, e *model.FieldEntry) []string {
	row := make([]string, 0, len(Header))
	row = append(row, category, subcategory, name)
	if e == nil || e.Populated() == 0 {
		return append(row, make([]string, 2+model.MaxYears)...)
	}

	pages := e.SourcePages()
	ps := make([]string, len(pages))
	for i, p := range pages {
		ps[i] = strconv.Itoa(p)
	}
	row = append(row, strings.Join(ps, ";"), strconv.FormatFloat(e.Confidence(), 'f', 2, 64))

	for _, s := range e.Slots {
		if s == nil {
			row = append(row, "")
			continue
		}
		row = append(row, s.Value.String())
	}
	return row
}
