package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/statement-cli/internal/config"
)

// fakePdftoppm writes one file per page number under the output prefix,
// which pdftoppm receives as its last argument.
func fakePdftoppm(ext string, pages ...string) (runFunc, *[]string) {
	var gotArgs []string
	return func(_ context.Context, _ string, args ...string) ([]byte, error) {
		gotArgs = args
		prefix := args[len(args)-1]
		for _, n := range pages {
			if err := os.WriteFile(prefix+"-"+n+ext, []byte("img"+n), 0o644); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}, &gotArgs
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestPdftoppm_Render(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "statements.pdf")
	writeFile(t, pdfPath, []byte("%PDF-1.4"))

	p := NewPdftoppm(config.RenderConfig{DPI: 200, WorkDir: dir}, 0)
	run, args := fakePdftoppm(".png", "01", "10", "02")
	p.run = run
	p.pageCount = func(string) (int, error) { return 3, nil }

	pages, err := p.Render(context.Background(), pdfPath)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	assert.Equal(t, 1, pages[0].PageNum)
	assert.Equal(t, 2, pages[1].PageNum)
	assert.Equal(t, 10, pages[2].PageNum)
	assert.Equal(t, []byte("img10"), pages[2].Data)
	assert.Equal(t, "image/png", pages[0].MediaType)
	assert.Empty(t, pages[0].Path)

	assert.Equal(t, []string{"-r", "200", "-png", pdfPath}, (*args)[:4])

	// Temp output is cleaned up.
	left, err := filepath.Glob(filepath.Join(dir, "statement-pages-*"))
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestPdftoppm_MaxPagesAndJPEG(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "statements.pdf")
	writeFile(t, pdfPath, []byte("%PDF-1.4"))

	p := NewPdftoppm(config.RenderConfig{Format: "jpg", WorkDir: dir}, 2)
	run, args := fakePdftoppm(".jpg", "1", "2")
	p.run = run
	p.pageCount = func(string) (int, error) { return 0, errors.New("unreadable") }

	pages, err := p.Render(context.Background(), pdfPath)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "image/jpeg", pages[0].MediaType)
	assert.Equal(t, []string{"-r", "150", "-jpeg", "-l", "2", pdfPath}, (*args)[:6])
}

func TestPdftoppm_NoOutput(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "blank.pdf")
	writeFile(t, pdfPath, []byte("%PDF-1.4"))

	p := NewPdftoppm(config.RenderConfig{WorkDir: dir}, 0)
	p.run, _ = fakePdftoppm(".png")

	_, err := p.Render(context.Background(), pdfPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoPages)
}

func TestPdftoppm_CommandFails(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "broken.pdf")
	writeFile(t, pdfPath, []byte("junk"))

	p := NewPdftoppm(config.RenderConfig{WorkDir: dir}, 0)
	p.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Syntax Error: Couldn't find trailer dictionary\n"), errors.New("exit status 1")
	}

	_, err := p.Render(context.Background(), pdfPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Couldn't find trailer dictionary")
}

func TestPdftoppm_MissingFile(t *testing.T) {
	p := NewPdftoppm(config.RenderConfig{}, 0)
	_, err := p.Render(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render: open")
}

func TestDir_Render(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "page-3.png"), []byte("c"))
	writeFile(t, filepath.Join(dir, "page-1.png"), []byte("a"))
	writeFile(t, filepath.Join(dir, "page-12.jpg"), []byte("d"))
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("skip"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	pages, err := NewDir(0).Render(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, []int{1, 3, 12}, []int{pages[0].PageNum, pages[1].PageNum, pages[2].PageNum})
	assert.Equal(t, "image/jpeg", pages[2].MediaType)
	assert.Equal(t, filepath.Join(dir, "page-1.png"), pages[0].Path)
}

func TestDir_PositionalNumbering(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.png"), []byte("b"))
	writeFile(t, filepath.Join(dir, "a.png"), []byte("a"))
	writeFile(t, filepath.Join(dir, "c.png"), []byte("c"))

	pages, err := NewDir(2).Render(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].PageNum)
	assert.Equal(t, []byte("a"), pages[0].Data)
	assert.Equal(t, 2, pages[1].PageNum)
	assert.Equal(t, []byte("b"), pages[1].Data)
}

func TestDir_Empty(t *testing.T) {
	_, err := NewDir(0).Render(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrNoPages)
}

func TestNew_DispatchesOnPathKind(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "page-1.png"), []byte("a"))

	r := New(config.RenderConfig{}, 0)
	pages, err := r.Render(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	_, err = r.Render(context.Background(), filepath.Join(dir, "missing.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render: stat")
}

// minimalPDF builds a valid PDF with n empty pages and a correct xref table.
func minimalPDF(n int) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := 0; i < n; i++ {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, n))
	for i := 0; i < n; i++ {
		obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestPageCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "three.pdf")
	writeFile(t, path, minimalPDF(3))

	n, err := PageCount(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPageCount_NotPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	writeFile(t, path, []byte("this is not a pdf"))

	_, err := PageCount(path)
	require.Error(t, err)
}
