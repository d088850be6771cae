// Package render turns statement documents into page images for the vision
// providers.
package render

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/statement-cli/internal/config"
	"github.com/sells-group/statement-cli/internal/model"
)

// ErrNoPages is returned when a document yields no page images.
var ErrNoPages = eris.New("render: no pages rendered")

// Renderer produces page images for a document, in ascending page order.
type Renderer interface {
	Render(ctx context.Context, path string) ([]model.PageImage, error)
}

// New returns a Renderer that rasterizes PDFs with pdftoppm and loads
// directories of pre-rendered page images as-is.
func New(cfg config.RenderConfig, maxPages int) Renderer {
	return &auto{
		pdf: NewPdftoppm(cfg, maxPages),
		dir: NewDir(maxPages),
	}
}

type auto struct {
	pdf Renderer
	dir Renderer
}

func (a *auto) Render(ctx context.Context, path string) ([]model.PageImage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "render: stat %s", path)
	}
	if info.IsDir() {
		return a.dir.Render(ctx, path)
	}
	return a.pdf.Render(ctx, path)
}

// mediaTypeFor maps an image file extension to its MIME type.
func mediaTypeFor(ext string) (string, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png":
		return "image/png", true
	case "jpg", "jpeg":
		return "image/jpeg", true
	case "webp":
		return "image/webp", true
	case "gif":
		return "image/gif", true
	}
	return "", false
}
