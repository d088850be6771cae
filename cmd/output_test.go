package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/statement-cli/internal/config"
	"github.com/sells-group/statement-cli/internal/export"
	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/internal/pipeline"
	"github.com/sells-group/statement-cli/internal/template"
)

func sampleDocumentResult() *model.DocumentResult {
	ys := model.NewYearSet("2024", "2023")
	cash := &model.FieldEntry{Field: "Cash and Cash Equivalents", Source: model.StatementBalanceSheet, FirstPage: 4}
	cash.Slots[0] = &model.SlotValue{Value: model.NumberValue(17299358), Confidence: 0.9, Year: "2024", PageNum: 4}
	return &model.DocumentResult{
		Document: model.Document{Name: "acme.pdf"},
		Classifications: []model.PageClassification{
			{PageNum: 1, Label: model.StatementNonFinancial},
			{PageNum: 4, Label: model.StatementBalanceSheet, Scores: model.Scores{BalanceSheet: 92}},
		},
		YearSet:       ys,
		YearsFallback: true,
		Record: &model.CombinedRecord{
			YearSet: ys,
			Entries: map[string]*model.FieldEntry{cash.Field: cash},
			Pages:   []int{4},
		},
		Errors: []model.PageError{{Kind: model.ErrYearDetectionFailure, Message: "using fallback years"}},
		Usage:  model.TokenUsage{InputTokens: 1200, OutputTokens: 300, Cost: 0.0123},
	}
}

func TestWriteResult_NoStorage(t *testing.T) {
	c := &config.Config{}
	env := &pipelineEnv{
		Template: template.Default(),
		Pipeline: pipeline.New(c, nil, nil, nil, nil),
	}
	dir := t.TempDir()

	path, key, err := writeResult(context.Background(), env, sampleDocumentResult(), dir, export.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "acme.csv"), path)
	assert.Empty(t, key)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Cash and Cash Equivalents,4,0.90,17299358,,,")
}

func TestFormatSummary(t *testing.T) {
	var buf bytes.Buffer
	formatSummary(&buf, sampleDocumentResult(), "out/acme.csv")
	out := buf.String()

	assert.Contains(t, out, "acme.pdf")
	assert.Contains(t, out, "2 (1 financial)")
	assert.Contains(t, out, "[2024 2023] (fallback)")
	assert.Contains(t, out, "1500")
	assert.Contains(t, out, "$0.0123")
	assert.Contains(t, out, "out/acme.csv")
	assert.Contains(t, out, "using fallback years")
	assert.NotContains(t, out, "Run:")
}

func TestFormatClassifications(t *testing.T) {
	var buf bytes.Buffer
	formatClassifications(&buf, []model.PageClassification{
		{PageNum: 1, Label: model.StatementNonFinancial},
		{PageNum: 2, Label: model.StatementIncome, Scores: model.Scores{IncomeStatement: 88, CashFlow: 12}},
		{PageNum: 3, Label: model.StatementNonFinancial, Error: "timeout"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[3], "88")
	assert.Contains(t, lines[3], string(model.StatementIncome))
	assert.Contains(t, lines[4], "(failed)")
}
