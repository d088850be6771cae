package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/internal/provider"
)

const defaultScanPages = 3

// yearsOutcome is what DetectYears settled on.
type yearsOutcome struct {
	set      model.YearSet
	fallback bool
	usage    model.TokenUsage
	errs     []model.PageError
}

// yearScanPages picks the pages to read reporting years from: the first
// financial pages in page order, or the first pages of the document when no
// page was labeled financial.
func (p *Pipeline) yearScanPages(pages []model.PageImage, classes []model.PageClassification) []model.PageImage {
	n := p.cfg.Years.ScanPages
	if n <= 0 {
		n = defaultScanPages
	}

	financial := make(map[int]bool, len(classes))
	for _, c := range classes {
		if c.IsFinancial() {
			financial[c.PageNum] = true
		}
	}

	var picked []model.PageImage
	for _, page := range pages {
		if len(picked) == n {
			break
		}
		if financial[page.PageNum] {
			picked = append(picked, page)
		}
	}
	if len(picked) > 0 {
		return picked
	}
	if len(pages) < n {
		n = len(pages)
	}
	return pages[:n]
}

// DetectYears builds the document YearSet from the union of years printed on
// the scan pages. When no call yields a valid year the configured fallback is
// used and a YearDetectionFailure is recorded.
func (p *Pipeline) DetectYears(ctx context.Context, pages []model.PageImage, classes []model.PageClassification) yearsOutcome {
	scan := p.yearScanPages(pages, classes)
	found := make([][]string, len(scan))
	usages := make([]model.TokenUsage, len(scan))
	failures := make([]error, len(scan))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency())
	for i, page := range scan {
		g.Go(func() error {
			var res provider.YearsResult
			if p.cache.get(gctx, page, kindYears, &res) {
				found[i] = res.Years
				return nil
			}
			got, err := p.provider.DetectYears(gctx, page)
			if err != nil {
				zap.L().Warn("pipeline: year detection failed",
					zap.Int("page", page.PageNum),
					zap.Error(err),
				)
				failures[i] = err
				return nil
			}
			found[i] = got.Years
			usages[i] = got.Usage
			p.cache.put(gctx, page, kindYears, provider.YearsResult{Years: got.Years})
			return nil
		})
	}
	_ = g.Wait()

	var out yearsOutcome
	var all []string
	for i := range scan {
		out.usage.Add(usages[i])
		all = append(all, found[i]...)
		if failures[i] != nil {
			out.errs = append(out.errs, model.PageError{
				Kind:    model.ErrYearDetectionFailure,
				PageNum: scan[i].PageNum,
				Message: failures[i].Error(),
			})
		}
	}

	out.set = model.NewYearSet(all...)
	if out.set.Len() > 0 {
		zap.L().Info("pipeline: reporting years detected", zap.Strings("years", out.set.Years()))
		return out
	}

	out.set = model.NewYearSet(p.cfg.Years.Fallback...)
	out.fallback = true
	out.errs = append(out.errs, model.PageError{
		Kind:    model.ErrYearDetectionFailure,
		Message: fmt.Sprintf("no reporting year found on %d scanned pages, using fallback %v", len(scan), out.set.Years()),
	})
	zap.L().Warn("pipeline: using fallback years",
		zap.Int("scanned_pages", len(scan)),
		zap.Strings("years", out.set.Years()),
	)
	return out
}
