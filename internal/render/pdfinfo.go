package render

import (
	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// PageCount returns the number of pages in the PDF's page tree.
func PageCount(path string) (int, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "render: read pdf %s", path)
	}
	defer f.Close() //nolint:errcheck

	n := r.NumPage()
	if n <= 0 {
		return 0, eris.Wrapf(ErrNoPages, "render: %s has no pages", path)
	}
	return n, nil
}
