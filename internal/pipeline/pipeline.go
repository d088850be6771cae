// Package pipeline turns rendered statement pages into a combined,
// year-aligned record: classify, detect years, extract, combine.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/statement-cli/internal/config"
	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/internal/provider"
	"github.com/sells-group/statement-cli/internal/render"
	"github.com/sells-group/statement-cli/internal/store"
	"github.com/sells-group/statement-cli/internal/template"
)

// Pipeline processes financial statement documents end to end.
type Pipeline struct {
	cfg      *config.Config
	provider provider.Provider
	renderer render.Renderer
	tmpl     *template.Template
	store    store.Store // optional
	cache    *pageCache
}

// New creates a Pipeline. st may be nil, in which case runs are not
// persisted and the page cache is disabled.
func New(cfg *config.Config, p provider.Provider, r render.Renderer, tmpl *template.Template, st store.Store) *Pipeline {
	if tmpl == nil {
		tmpl = template.Default()
	}
	return &Pipeline{
		cfg:      cfg,
		provider: p,
		renderer: r,
		tmpl:     tmpl,
		store:    st,
		cache:    newPageCache(cfg, st, p),
	}
}

// Template returns the field template the pipeline extracts against.
func (p *Pipeline) Template() *template.Template { return p.tmpl }

func (p *Pipeline) concurrency() int {
	if p.cfg.Pipeline.Concurrency > 0 {
		return p.cfg.Pipeline.Concurrency
	}
	return 1
}

// Run renders the document at path and processes it. Only setup failures
// (missing input, rendering) are returned as errors; page level failures are
// collected on the result.
func (p *Pipeline) Run(ctx context.Context, path string) (*model.DocumentResult, error) {
	if secs := p.cfg.Pipeline.TimeoutSecs; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	doc, err := Describe(path)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("document", doc.Name))
	log.Info("pipeline: starting document")

	runID := p.createRun(ctx, doc)
	setStatus := p.statusFunc(ctx, runID)

	setStatus(model.RunStatusRendering)
	pages, err := p.renderer.Render(ctx, path)
	if err != nil {
		p.saveRunResult(ctx, runID, &model.RunResult{
			Provider: p.provider.Name(),
			Model:    p.provider.Model(),
			Error:    err.Error(),
		})
		return nil, eris.Wrapf(err, "pipeline: render %s", doc.Name)
	}
	doc.Pages = len(pages)
	log.Info("pipeline: document rendered", zap.Int("pages", len(pages)))

	result := p.process(ctx, doc, pages, setStatus)
	result.RunID = runID

	if runID != "" {
		p.saveRunResult(ctx, runID, result.Summarize())
		if err := p.store.SaveResult(ctx, runID, result); err != nil {
			log.Warn("pipeline: failed to save result", zap.String("run_id", runID), zap.Error(err))
		}
	}

	log.Info("pipeline: document complete",
		zap.String("run_id", runID),
		zap.Strings("years", result.YearSet.Years()),
		zap.Int("financial_pages", len(result.FinancialPages())),
		zap.Int("fields", len(result.Record.Entries)),
		zap.Int("errors", len(result.Errors)),
		zap.Int("tokens", result.Usage.InputTokens+result.Usage.OutputTokens),
		zap.Float64("cost", result.Usage.Cost),
		zap.Int64("duration_ms", result.Duration),
	)
	return result, nil
}

// Process runs classification, year detection, extraction and combination
// over already rendered pages.
func (p *Pipeline) Process(ctx context.Context, doc model.Document, pages []model.PageImage) *model.DocumentResult {
	return p.process(ctx, doc, pages, func(model.RunStatus) {})
}

func (p *Pipeline) process(ctx context.Context, doc model.Document, pages []model.PageImage, setStatus func(model.RunStatus)) *model.DocumentResult {
	start := time.Now()
	result := &model.DocumentResult{
		Document: doc,
		Provider: p.provider.Name(),
		Model:    p.provider.Model(),
	}

	setStatus(model.RunStatusClassifying)
	classes, usage, errs := p.ClassifyPages(ctx, pages)
	result.Classifications = classes
	result.Usage.Add(usage)
	result.Errors = append(result.Errors, errs...)

	years := p.DetectYears(ctx, pages, classes)
	result.YearSet = years.set
	result.YearsFallback = years.fallback
	result.Usage.Add(years.usage)
	result.Errors = append(result.Errors, years.errs...)

	setStatus(model.RunStatusExtracting)
	pageResults, errs := p.ExtractPages(ctx, pages, classes, years.set)
	result.Errors = append(result.Errors, errs...)

	setStatus(model.RunStatusCombining)
	c := NewCombiner(years.set)
	for _, pr := range pageResults {
		result.Usage.Add(pr.Usage)
		c.Add(pr.Values...)
	}
	result.Record = c.Record()
	result.Errors = append(result.Errors, c.Ambiguities()...)
	if n := c.Dropped(); n > 0 {
		zap.L().Warn("pipeline: values dropped for years outside the year set",
			zap.String("document", doc.Name),
			zap.Int("dropped", n),
		)
	}

	result.Duration = time.Since(start).Milliseconds()
	return result
}

// Classify renders the document and classifies its pages without extracting.
func (p *Pipeline) Classify(ctx context.Context, path string) (*model.DocumentResult, error) {
	doc, err := Describe(path)
	if err != nil {
		return nil, err
	}
	pages, err := p.renderer.Render(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: render %s", doc.Name)
	}
	doc.Pages = len(pages)

	classes, usage, errs := p.ClassifyPages(ctx, pages)
	return &model.DocumentResult{
		Document:        doc,
		Provider:        p.provider.Name(),
		Model:           p.provider.Model(),
		Classifications: classes,
		Errors:          errs,
		Usage:           usage,
	}, nil
}

// AttachOutput records where the exported result was written and refreshes
// the persisted run summary.
func (p *Pipeline) AttachOutput(ctx context.Context, result *model.DocumentResult, outputPath, artifactKey string) {
	if result.RunID == "" {
		return
	}
	summary := result.Summarize()
	summary.OutputPath = outputPath
	summary.ArtifactKey = artifactKey
	p.saveRunResult(ctx, result.RunID, summary)
}

func (p *Pipeline) createRun(ctx context.Context, doc model.Document) string {
	if p.store == nil {
		return ""
	}
	run, err := p.store.CreateRun(ctx, doc)
	if err != nil {
		zap.L().Warn("pipeline: failed to create run", zap.String("document", doc.Name), zap.Error(err))
		return ""
	}
	return run.ID
}

func (p *Pipeline) statusFunc(ctx context.Context, runID string) func(model.RunStatus) {
	return func(status model.RunStatus) {
		if runID == "" {
			return
		}
		if err := p.store.UpdateRunStatus(ctx, runID, status); err != nil {
			zap.L().Warn("pipeline: failed to update status",
				zap.String("run_id", runID),
				zap.String("status", string(status)),
				zap.Error(err),
			)
		}
	}
}

func (p *Pipeline) saveRunResult(ctx context.Context, runID string, res *model.RunResult) {
	if runID == "" {
		return
	}
	if err := p.store.UpdateRunResult(ctx, runID, res); err != nil {
		zap.L().Warn("pipeline: failed to update run result", zap.String("run_id", runID), zap.Error(err))
	}
}

// Describe identifies the input at path. Files are hashed; directories of
// pre-rendered pages are not.
func Describe(path string) (model.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.Document{}, eris.Wrapf(err, "pipeline: stat %s", path)
	}
	doc := model.Document{
		Path: path,
		Name: filepath.Base(path),
	}
	if info.IsDir() {
		return doc, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return model.Document{}, eris.Wrapf(err, "pipeline: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return model.Document{}, eris.Wrapf(err, "pipeline: hash %s", path)
	}
	doc.Hash = hex.EncodeToString(h.Sum(nil))
	return doc, nil
}
