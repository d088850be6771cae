package render

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/statement-cli/internal/model"
)

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// Dir loads pre-rendered page images from a directory. Pages are numbered
// by the trailing digits of each file name (page-007.png is page 7), or by
// sorted position when a name has none.
type Dir struct {
	maxPages int
}

// NewDir creates a Dir renderer. maxPages <= 0 loads every image.
func NewDir(maxPages int) *Dir {
	return &Dir{maxPages: maxPages}
}

func (d *Dir) Render(ctx context.Context, dir string) ([]model.PageImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "render: read dir %s", dir)
	}

	type candidate struct {
		name string
		num  int
	}
	var files []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if _, ok := mediaTypeFor(ext); !ok {
			continue
		}
		num := 0
		if m := trailingDigits.FindStringSubmatch(e.Name()[:len(e.Name())-len(ext)]); m != nil {
			num, _ = strconv.Atoi(m[1])
		}
		files = append(files, candidate{name: e.Name(), num: num})
	}
	if len(files) == 0 {
		return nil, eris.Wrapf(ErrNoPages, "render: no images in %s", dir)
	}

	// Positional numbering unless every file carries a distinct positive number.
	positional := false
	seen := make(map[int]bool, len(files))
	for _, f := range files {
		if f.num <= 0 || seen[f.num] {
			positional = true
			break
		}
		seen[f.num] = true
	}

	sort.Slice(files, func(i, j int) bool {
		if !positional && files[i].num != files[j].num {
			return files[i].num < files[j].num
		}
		return files[i].name < files[j].name
	})

	var pages []model.PageImage
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "render: load images")
		}
		num := f.num
		if positional {
			num = i + 1
		}
		img, err := readImage(filepath.Join(dir, f.name), num)
		if err != nil {
			return nil, err
		}
		pages = append(pages, img)
		if d.maxPages > 0 && len(pages) == d.maxPages {
			break
		}
	}
	return pages, nil
}
