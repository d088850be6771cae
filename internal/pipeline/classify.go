package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/internal/provider"
)

// classifyOutcome is the per-page slot written by a classification worker.
type classifyOutcome struct {
	class model.PageClassification
	usage model.TokenUsage
	err   *model.PageError
}

// ClassifyPages scores every page and labels it. A failed call labels the page
// NonFinancial and records a ClassificationFailure; it never stops the others.
// Results are returned in the order of pages.
func (p *Pipeline) ClassifyPages(ctx context.Context, pages []model.PageImage) ([]model.PageClassification, model.TokenUsage, []model.PageError) {
	outcomes := make([]classifyOutcome, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency())

	for i, page := range pages {
		g.Go(func() error {
			outcomes[i] = p.classifyPage(gctx, page)
			return nil
		})
	}
	_ = g.Wait()

	var (
		classes = make([]model.PageClassification, len(pages))
		usage   model.TokenUsage
		errs    []model.PageError
	)
	for i, o := range outcomes {
		classes[i] = o.class
		usage.Add(o.usage)
		if o.err != nil {
			errs = append(errs, *o.err)
		}
	}
	return classes, usage, errs
}

func (p *Pipeline) classifyPage(ctx context.Context, page model.PageImage) classifyOutcome {
	var res provider.ClassifyResult
	if !p.cache.get(ctx, page, kindClassify, &res) {
		got, err := p.provider.Classify(ctx, page)
		if err != nil {
			zap.L().Warn("pipeline: classification failed, treating page as non-financial",
				zap.Int("page", page.PageNum),
				zap.Error(err),
			)
			return classifyOutcome{
				class: model.FailedClassification(page.PageNum, err),
				err: &model.PageError{
					Kind:    model.ErrClassificationFailure,
					PageNum: page.PageNum,
					Message: err.Error(),
				},
			}
		}
		res = *got
		p.cache.put(ctx, page, kindClassify, provider.ClassifyResult{Scores: res.Scores})
	} else {
		res.Usage = model.TokenUsage{}
	}

	class := model.NewPageClassification(page.PageNum, res.Scores, p.cfg.Classify.Threshold)
	zap.L().Debug("pipeline: page classified",
		zap.Int("page", page.PageNum),
		zap.String("label", string(class.Label)),
		zap.Float64("bs", class.Scores.BalanceSheet),
		zap.Float64("is", class.Scores.IncomeStatement),
		zap.Float64("cf", class.Scores.CashFlow),
		zap.Float64("es", class.Scores.EquityStatement),
	)
	return classifyOutcome{class: class, usage: res.Usage}
}
