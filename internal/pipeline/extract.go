package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/internal/provider"
)

// ExtractPages reads template fields off every financial page. The returned
// slice holds one PageResult per financial page, in page order. A page whose
// call fails is left out and recorded as an ExtractionFailure.
func (p *Pipeline) ExtractPages(ctx context.Context, pages []model.PageImage, classes []model.PageClassification, ys model.YearSet) ([]model.PageResult, []model.PageError) {
	labels := make(map[int]model.StatementType, len(classes))
	for _, c := range classes {
		if c.IsFinancial() {
			labels[c.PageNum] = c.Label
		}
	}

	var work []model.PageImage
	for _, page := range pages {
		if _, ok := labels[page.PageNum]; ok {
			work = append(work, page)
		}
	}

	results := make([]*model.PageResult, len(work))
	failures := make([]*model.PageError, len(work))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency())
	for i, page := range work {
		g.Go(func() error {
			res, err := p.extractPage(gctx, page, labels[page.PageNum], ys)
			if err != nil {
				zap.L().Warn("pipeline: extraction failed, skipping page",
					zap.Int("page", page.PageNum),
					zap.String("statement", string(labels[page.PageNum])),
					zap.Error(err),
				)
				failures[i] = &model.PageError{
					Kind:    model.ErrExtractionFailure,
					PageNum: page.PageNum,
					Message: err.Error(),
				}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var (
		out  []model.PageResult
		errs []model.PageError
	)
	for i := range work {
		if results[i] != nil {
			out = append(out, *results[i])
		}
		if failures[i] != nil {
			errs = append(errs, *failures[i])
		}
	}
	return out, errs
}

func (p *Pipeline) extractPage(ctx context.Context, page model.PageImage, st model.StatementType, ys model.YearSet) (*model.PageResult, error) {
	req := provider.ExtractRequest{
		Statement: st,
		Fields:    p.tmpl.ForStatement(st),
		Years:     ys.Years(),
	}
	kind := extractKind(req)

	var res provider.ExtractResult
	if p.cache.get(ctx, page, kind, &res) {
		res.Usage = model.TokenUsage{}
	} else {
		got, err := p.provider.Extract(ctx, page, req)
		if err != nil {
			return nil, err
		}
		res = *got
		p.cache.put(ctx, page, kind, provider.ExtractResult{Values: res.Values})
	}

	values := make([]model.FieldValue, 0, len(res.Values))
	for _, v := range res.Values {
		v.Field = p.tmpl.Canonical(v.Field)
		v.PageNum = page.PageNum
		v.Source = st
		values = append(values, v)
	}

	zap.L().Debug("pipeline: page extracted",
		zap.Int("page", page.PageNum),
		zap.String("statement", string(st)),
		zap.Int("values", len(values)),
	)
	return &model.PageResult{
		PageNum:   page.PageNum,
		Statement: st,
		Values:    values,
		Usage:     res.Usage,
	}, nil
}
