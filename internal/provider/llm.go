package provider

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/statement-cli/internal/cost"
	"github.com/sells-group/statement-cli/internal/model"
)

// visionRequest is one system prompt + user prompt + page image call.
type visionRequest struct {
	Operation   string
	System      string
	Prompt      string
	Page        model.PageImage
	MaxTokens   int
	Temperature float64
}

// completer sends a visionRequest to a backend and returns the raw reply.
type completer interface {
	complete(ctx context.Context, req visionRequest) (string, model.TokenUsage, error)
}

// llmProvider implements Provider on top of any completer. Prompting,
// parsing and normalization are shared by every backend.
type llmProvider struct {
	name        string
	model       string
	backend     completer
	calc        *cost.Calculator
	maxTokens   int
	temperature float64
}

func newLLMProvider(name, modelName string, backend completer, calc *cost.Calculator, maxTokens int, temperature float64) *llmProvider {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if calc == nil {
		calc = cost.NewCalculator(cost.DefaultRates())
	}
	return &llmProvider{
		name:        name,
		model:       modelName,
		backend:     backend,
		calc:        calc,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

func (p *llmProvider) Name() string  { return p.name }
func (p *llmProvider) Model() string { return p.model }

func (p *llmProvider) call(ctx context.Context, op, system, prompt string, page model.PageImage, maxTokens int) (string, model.TokenUsage, error) {
	if maxTokens <= 0 || maxTokens > p.maxTokens {
		maxTokens = p.maxTokens
	}
	text, usage, err := p.backend.complete(ctx, visionRequest{
		Operation:   op,
		System:      system,
		Prompt:      prompt,
		Page:        page,
		MaxTokens:   maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		return "", usage, eris.Wrapf(err, "%s: %s page %d", p.name, op, page.PageNum)
	}
	return text, p.calc.Usage(p.name, p.model, usage), nil
}

type scoreResponse struct {
	BalanceSheet    float64 `json:"balance_sheet"`
	IncomeStatement float64 `json:"income_statement"`
	CashFlow        float64 `json:"cash_flow"`
	EquityStatement float64 `json:"equity_statement"`
}

func (p *llmProvider) Classify(ctx context.Context, page model.PageImage) (*ClassifyResult, error) {
	text, usage, err := p.call(ctx, opClassify, classifySystem, classifyPrompt, page, 256)
	if err != nil {
		return nil, err
	}

	var resp scoreResponse
	if err := decodeResponse(text, scoreSchema, &resp); err != nil {
		return nil, eris.Wrapf(err, "%s: classify page %d", p.name, page.PageNum)
	}

	return &ClassifyResult{
		Scores: normalizeScores(model.Scores{
			BalanceSheet:    resp.BalanceSheet,
			IncomeStatement: resp.IncomeStatement,
			CashFlow:        resp.CashFlow,
			EquityStatement: resp.EquityStatement,
		}),
		Usage: usage,
	}, nil
}

type yearsResponse struct {
	Years []json.RawMessage `json:"years"`
}

func (p *llmProvider) DetectYears(ctx context.Context, page model.PageImage) (*YearsResult, error) {
	text, usage, err := p.call(ctx, opYears, yearsSystem, yearsPrompt, page, 256)
	if err != nil {
		return nil, err
	}

	var resp yearsResponse
	if err := decodeResponse(text, yearsSchema, &resp); err != nil {
		return nil, eris.Wrapf(err, "%s: detect years page %d", p.name, page.PageNum)
	}

	seen := make(map[string]bool, len(resp.Years))
	years := make([]string, 0, len(resp.Years))
	for _, raw := range resp.Years {
		y := normalizeYear(raw)
		if y == "" {
			zap.L().Debug("provider: ignoring invalid year",
				zap.String("provider", p.name),
				zap.Int("page", page.PageNum),
				zap.String("raw", string(raw)),
			)
			continue
		}
		if !seen[y] {
			seen[y] = true
			years = append(years, y)
		}
	}

	return &YearsResult{Years: years, Usage: usage}, nil
}

type extractEntry struct {
	Value      json.RawMessage `json:"value"`
	Year       json.RawMessage `json:"year"`
	Confidence *float64        `json:"confidence"`
}

type extractResponse struct {
	Fields map[string]json.RawMessage `json:"fields"`
}

func (p *llmProvider) Extract(ctx context.Context, page model.PageImage, req ExtractRequest) (*ExtractResult, error) {
	text, usage, err := p.call(ctx, opExtract, extractSystem, extractPrompt(req), page, 0)
	if err != nil {
		return nil, err
	}

	var resp extractResponse
	if err := decodeResponse(text, extractSchema, &resp); err != nil {
		return nil, eris.Wrapf(err, "%s: extract page %d", p.name, page.PageNum)
	}

	names := make([]string, 0, len(resp.Fields))
	for name := range resp.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var values []model.FieldValue
	for _, name := range names {
		entries, err := decodeEntries(resp.Fields[name])
		if err != nil {
			zap.L().Warn("provider: skipping malformed field",
				zap.String("provider", p.name),
				zap.Int("page", page.PageNum),
				zap.String("field", name),
				zap.Error(err),
			)
			continue
		}
		for _, e := range entries {
			v := parseValue(e.Value)
			if v.IsZero() {
				continue
			}
			values = append(values, model.FieldValue{
				Field:      name,
				Value:      v,
				Confidence: normalizeConfidence(e.Confidence),
				Year:       normalizeYear(e.Year),
				PageNum:    page.PageNum,
				Source:     req.Statement,
			})
		}
	}

	return &ExtractResult{Values: values, Usage: usage}, nil
}

// decodeEntries accepts a single entry object or a list of them.
func decodeEntries(raw json.RawMessage) ([]extractEntry, error) {
	var list []extractEntry
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var one extractEntry
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, eris.Wrap(err, "provider: decode field entry")
	}
	return []extractEntry{one}, nil
}
