package api

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/statement-cli/internal/export"
	"github.com/sells-group/statement-cli/internal/render"
)

var pdfMagic = []byte("%PDF-")

// extract accepts a multipart "file" PDF, runs it and returns the result in
// the format named by ?format (json by default).
func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	format := export.FormatJSON
	if q := r.URL.Query().Get("format"); q != "" {
		f, err := export.ParseFormat(q)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		format = f
	}

	if r.ContentLength > s.opts.MaxUploadBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		respondError(w, http.StatusUnsupportedMediaType, "only PDF files are accepted")
		return
	}

	dir, err := os.MkdirTemp(s.opts.WorkDir, "statement-upload-*")
	if err != nil {
		zap.L().Error("api: create upload dir", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	path := filepath.Join(dir, uploadName(header.Filename))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		zap.L().Error("api: write upload", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}

	result, err := s.ext.Run(r.Context(), path)
	if err != nil {
		zap.L().Warn("api: extraction failed", zap.String("file", header.Filename), zap.Error(err))
		if errors.Is(err, render.ErrNoPages) {
			respondError(w, http.StatusUnprocessableEntity, "document has no renderable pages")
			return
		}
		respondError(w, http.StatusInternalServerError, "extraction failed")
		return
	}

	if result.RunID != "" {
		w.Header().Set("X-Run-Id", result.RunID)
	}
	if format == export.FormatJSON {
		respondJSON(w, http.StatusOK, result)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, result, s.ext.Template()); err != nil {
		zap.L().Error("api: export result", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to encode result")
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", attachment(export.OutputPath("", result.Document, format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// uploadName keeps a safe base name for the staged upload.
// attachment builds a Content-Disposition value with the filename quoted and
// escaped. Names that cannot be encoded fall back to a bare attachment.
func attachment(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

func uploadName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "upload.pdf"
	}
	if !strings.EqualFold(filepath.Ext(base), ".pdf") {
		base += ".pdf"
	}
	return base
}
