package render

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/statement-cli/internal/config"
	"github.com/sells-group/statement-cli/internal/model"
)

// runFunc executes an external command and returns its stderr on failure.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stderr.Bytes(), err
	}
	return nil, nil
}

// Pdftoppm rasterizes PDF pages with the poppler pdftoppm CLI.
type Pdftoppm struct {
	binPath  string
	dpi      int
	format   string
	workDir  string
	maxPages int

	run       runFunc
	pageCount func(path string) (int, error)
}

// NewPdftoppm creates a Pdftoppm renderer. maxPages <= 0 renders every page.
func NewPdftoppm(cfg config.RenderConfig, maxPages int) *Pdftoppm {
	p := &Pdftoppm{
		binPath:   cfg.PdftoppmPath,
		dpi:       cfg.DPI,
		format:    strings.ToLower(cfg.Format),
		workDir:   cfg.WorkDir,
		maxPages:  maxPages,
		run:       execRun,
		pageCount: PageCount,
	}
	if p.binPath == "" {
		p.binPath = "pdftoppm"
	}
	if p.dpi <= 0 {
		p.dpi = 150
	}
	if p.format == "jpg" {
		p.format = "jpeg"
	}
	if p.format != "jpeg" {
		p.format = "png"
	}
	return p
}

// Render runs pdftoppm -r <dpi> -png|-jpeg on pdfPath and loads the output
// images into memory. The temporary directory is removed before returning.
func (p *Pdftoppm) Render(ctx context.Context, pdfPath string) ([]model.PageImage, error) {
	if _, err := os.Stat(pdfPath); err != nil {
		return nil, eris.Wrapf(err, "render: open %s", pdfPath)
	}

	tmpDir, err := os.MkdirTemp(p.workDir, "statement-pages-*")
	if err != nil {
		return nil, eris.Wrap(err, "render: create temp dir")
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			zap.L().Warn("render: failed to remove temp dir", zap.String("dir", tmpDir), zap.Error(err))
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", strconv.Itoa(p.dpi), "-" + p.format}
	if p.maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(p.maxPages))
	}
	args = append(args, pdfPath, prefix)

	if stderr, err := p.run(ctx, p.binPath, args...); err != nil {
		return nil, eris.Wrapf(err, "render: pdftoppm failed for %s: %s", pdfPath, strings.TrimSpace(string(stderr)))
	}

	ext := ".png"
	if p.format == "jpeg" {
		ext = ".jpg"
	}
	matches, err := filepath.Glob(prefix + "-*" + ext)
	if err != nil {
		return nil, eris.Wrap(err, "render: list pages")
	}
	if len(matches) == 0 {
		return nil, eris.Wrapf(ErrNoPages, "render: pdftoppm produced no images for %s", pdfPath)
	}

	pages, err := loadNumbered(matches)
	if err != nil {
		return nil, err
	}
	p.checkCount(pdfPath, len(pages))

	for i := range pages {
		pages[i].Path = ""
	}

	zap.L().Debug("render: rendered pdf",
		zap.String("path", pdfPath),
		zap.Int("pages", len(pages)),
		zap.Int("dpi", p.dpi),
	)
	return pages, nil
}

// checkCount compares the rendered page count with the PDF's own page
// tree. A mismatch is logged, not fatal.
func (p *Pdftoppm) checkCount(pdfPath string, rendered int) {
	if p.pageCount == nil {
		return
	}
	want, err := p.pageCount(pdfPath)
	if err != nil {
		zap.L().Debug("render: page count unavailable", zap.String("path", pdfPath), zap.Error(err))
		return
	}
	if p.maxPages > 0 && want > p.maxPages {
		want = p.maxPages
	}
	if want != rendered {
		zap.L().Warn("render: page count mismatch",
			zap.String("path", pdfPath),
			zap.Int("expected", want),
			zap.Int("rendered", rendered),
		)
	}
}

// loadNumbered reads images named <prefix>-<n>.<ext> and returns them sorted
// by n. pdftoppm zero-pads n to the width of the last page number.
func loadNumbered(paths []string) ([]model.PageImage, error) {
	pages := make([]model.PageImage, 0, len(paths))
	for _, path := range paths {
		ext := filepath.Ext(path)
		base := strings.TrimSuffix(filepath.Base(path), ext)
		idx := strings.LastIndexByte(base, '-')
		n, err := strconv.Atoi(base[idx+1:])
		if err != nil || n <= 0 {
			return nil, eris.Errorf("render: unexpected page file %s", path)
		}

		img, err := readImage(path, n)
		if err != nil {
			return nil, err
		}
		pages = append(pages, img)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNum < pages[j].PageNum })
	return pages, nil
}

func readImage(path string, pageNum int) (model.PageImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.PageImage{}, eris.Wrapf(err, "render: read %s", path)
	}
	mt, ok := mediaTypeFor(filepath.Ext(path))
	if !ok {
		return model.PageImage{}, eris.Errorf("render: unsupported image type %s", path)
	}
	return model.PageImage{
		PageNum:   pageNum,
		Path:      path,
		MediaType: mt,
		Data:      data,
	}, nil
}
