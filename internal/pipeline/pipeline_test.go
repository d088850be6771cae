package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/statement-cli/internal/config"
	"github.com/sells-group/statement-cli/internal/model"
	"github.com/sells-group/statement-cli/internal/provider"
	"github.com/sells-group/statement-cli/internal/render"
	"github.com/sells-group/statement-cli/internal/resilience"
	"github.com/sells-group/statement-cli/internal/store"
)

// MockProvider is a testify mock for provider.Provider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string  { return "mock" }
func (m *MockProvider) Model() string { return "mock-vision" }

func (m *MockProvider) Classify(ctx context.Context, page model.PageImage) (*provider.ClassifyResult, error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.ClassifyResult), args.Error(1)
}

func (m *MockProvider) DetectYears(ctx context.Context, page model.PageImage) (*provider.YearsResult, error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.YearsResult), args.Error(1)
}

func (m *MockProvider) Extract(ctx context.Context, page model.PageImage, req provider.ExtractRequest) (*provider.ExtractResult, error) {
	args := m.Called(ctx, page, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.ExtractResult), args.Error(1)
}

// fakeRenderer returns fixed pages or an error.
type fakeRenderer struct {
	pages []model.PageImage
	err   error
	calls int
}

func (f *fakeRenderer) Render(_ context.Context, _ string) ([]model.PageImage, error) {
	f.calls++
	return f.pages, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Classify: config.ClassifyConfig{Threshold: 50},
		Years:    config.YearsConfig{ScanPages: 2, Fallback: []string{"2024", "2023"}},
		Pipeline: config.PipelineConfig{Concurrency: 4},
		Cache:    config.CacheConfig{Enabled: true, TTLHours: 1},
	}
}

func testPages(n int) []model.PageImage {
	pages := make([]model.PageImage, n)
	for i := range pages {
		pages[i] = model.PageImage{
			PageNum:   i + 1,
			MediaType: "image/png",
			Data:      []byte{0x89, 'P', 'N', 'G', byte(i + 1)},
		}
	}
	return pages
}

func onPage(n int) any {
	return mock.MatchedBy(func(p model.PageImage) bool { return p.PageNum == n })
}

func forStatement(st model.StatementType) any {
	return mock.MatchedBy(func(r provider.ExtractRequest) bool { return r.Statement == st })
}

func usage(in, out int, cost float64) model.TokenUsage {
	return model.TokenUsage{InputTokens: in, OutputTokens: out, Cost: cost}
}

func classifyAs(bs, is, cf, es float64) *provider.ClassifyResult {
	return &provider.ClassifyResult{
		Scores: model.Scores{BalanceSheet: bs, IncomeStatement: is, CashFlow: cf, EquityStatement: es},
		Usage:  usage(100, 10, 0.01),
	}
}

func value(field string, v float64, conf float64, year string) model.FieldValue {
	return model.FieldValue{Field: field, Value: model.NumberValue(v), Confidence: conf, Year: year}
}

// standardDocument scripts a three page document: a cover page, a balance
// sheet and an income statement covering 2024 and 2023.
func standardDocument(mp *MockProvider) {
	mp.On("Classify", mock.Anything, onPage(1)).Return(classifyAs(5, 3, 2, 1), nil).Once()
	mp.On("Classify", mock.Anything, onPage(2)).Return(classifyAs(96, 10, 4, 2), nil).Once()
	mp.On("Classify", mock.Anything, onPage(3)).Return(classifyAs(8, 91, 12, 3), nil).Once()

	mp.On("DetectYears", mock.Anything, onPage(2)).Return(&provider.YearsResult{Years: []string{"2024", "2023"}, Usage: usage(50, 5, 0.002)}, nil).Once()
	mp.On("DetectYears", mock.Anything, onPage(3)).Return(&provider.YearsResult{Years: []string{"2024"}, Usage: usage(50, 5, 0.002)}, nil).Once()

	mp.On("Extract", mock.Anything, onPage(2), forStatement(model.StatementBalanceSheet)).Return(&provider.ExtractResult{
		Values: []model.FieldValue{
			value("Cash and Cash Equivalents", 17299358, 0.95, "2024"),
			value("cash & cash equivalents", 29984998, 0.93, "2023"),
			value("Treasury Stock", -1200, 0.8, "2024"),
		},
		Usage: usage(1000, 200, 0.05),
	}, nil).Once()
	mp.On("Extract", mock.Anything, onPage(3), forStatement(model.StatementIncome)).Return(&provider.ExtractResult{
		Values: []model.FieldValue{
			value("Total Revenues", 5000000, 0.9, "2024"),
			value("Net Income", 750000, 0.85, ""),
		},
		Usage: usage(1000, 200, 0.05),
	}, nil).Once()
}

func TestProcess_StandardDocument(t *testing.T) {
	mp := &MockProvider{}
	standardDocument(mp)

	p := New(testConfig(), mp, &fakeRenderer{}, nil, nil)
	result := p.Process(context.Background(), model.Document{Name: "acme.pdf"}, testPages(3))

	assert.Equal(t, "mock", result.Provider)
	assert.Equal(t, "mock-vision", result.Model)
	require.Len(t, result.Classifications, 3)
	assert.Equal(t, model.StatementNonFinancial, result.Classifications[0].Label)
	assert.Equal(t, model.StatementBalanceSheet, result.Classifications[1].Label)
	assert.Equal(t, model.StatementIncome, result.Classifications[2].Label)
	assert.Equal(t, []int{2, 3}, result.FinancialPages())

	assert.Equal(t, []string{"2024", "2023"}, result.YearSet.Years())
	assert.False(t, result.YearsFallback)

	rec := result.Record
	require.NotNil(t, rec)
	cash := rec.Entry("Cash and Cash Equivalents")
	require.NotNil(t, cash)
	assert.Equal(t, "17299358", slotString(cash, 0))
	assert.Equal(t, "29984998", slotString(cash, 1))

	rev := rec.Entry("Total Revenue")
	require.NotNil(t, rev, "alias should map to the template name")
	assert.Equal(t, model.StatementIncome, rev.Source)
	assert.Equal(t, "2024", rec.Entry("Net Income").Slots[0].Year)
	assert.NotNil(t, rec.Entry("Treasury Stock"))
	assert.Equal(t, []int{2, 3}, rec.Pages)

	assert.Empty(t, result.Errors)
	assert.Equal(t, 3*100+2*50+2*1000, result.Usage.InputTokens)
	assert.InDelta(t, 0.03+0.004+0.1, result.Usage.Cost, 1e-9)
	mp.AssertExpectations(t)
}

func TestProcess_FailedClassificationExcluded(t *testing.T) {
	mp := &MockProvider{}
	mp.On("Classify", mock.Anything, onPage(1)).Return(nil, errors.New("anthropic: classify page 1: overloaded")).Once()
	mp.On("Classify", mock.Anything, onPage(2)).Return(classifyAs(96, 10, 4, 2), nil).Once()
	mp.On("DetectYears", mock.Anything, onPage(2)).Return(&provider.YearsResult{Years: []string{"2024"}}, nil).Once()
	mp.On("Extract", mock.Anything, onPage(2), mock.Anything).Return(&provider.ExtractResult{
		Values: []model.FieldValue{value("Total Assets", 100, 0.9, "2024")},
	}, nil).Once()

	p := New(testConfig(), mp, &fakeRenderer{}, nil, nil)
	result := p.Process(context.Background(), model.Document{Name: "acme.pdf"}, testPages(2))

	assert.Equal(t, model.StatementNonFinancial, result.Classifications[0].Label)
	assert.NotEmpty(t, result.Classifications[0].Error)
	assert.Equal(t, []int{2}, result.FinancialPages())
	assert.Equal(t, []int{2}, result.Record.Pages)

	fails := result.ErrorsOf(model.ErrClassificationFailure)
	require.Len(t, fails, 1)
	assert.Equal(t, 1, fails[0].PageNum)
	mp.AssertNotCalled(t, "Extract", mock.Anything, onPage(1), mock.Anything)
	mp.AssertExpectations(t)
}

func TestProcess_ExtractionFailureSkipsPage(t *testing.T) {
	mp := &MockProvider{}
	mp.On("Classify", mock.Anything, onPage(1)).Return(classifyAs(90, 0, 0, 0), nil).Once()
	mp.On("Classify", mock.Anything, onPage(2)).Return(classifyAs(0, 0, 88, 0), nil).Once()
	mp.On("DetectYears", mock.Anything, mock.Anything).Return(&provider.YearsResult{Years: []string{"2024", "2023"}}, nil)
	mp.On("Extract", mock.Anything, onPage(1), mock.Anything).Return(nil, &resilience.TransientError{Err: errors.New("503")}).Once()
	mp.On("Extract", mock.Anything, onPage(2), forStatement(model.StatementCashFlow)).Return(&provider.ExtractResult{
		Values: []model.FieldValue{value("Net Cash Provided by Operating Activities", 321, 0.9, "2023")},
	}, nil).Once()

	p := New(testConfig(), mp, &fakeRenderer{}, nil, nil)
	result := p.Process(context.Background(), model.Document{Name: "acme.pdf"}, testPages(2))

	fails := result.ErrorsOf(model.ErrExtractionFailure)
	require.Len(t, fails, 1)
	assert.Equal(t, 1, fails[0].PageNum)

	e := result.Record.Entry("Net Cash from Operating Activities")
	require.NotNil(t, e)
	assert.Equal(t, "321", slotString(e, 1))
	assert.Equal(t, []int{2}, result.Record.Pages)
	mp.AssertExpectations(t)
}

func TestProcess_YearFallback(t *testing.T) {
	mp := &MockProvider{}
	mp.On("Classify", mock.Anything, mock.Anything).Return(classifyAs(90, 0, 0, 0), nil)
	mp.On("DetectYears", mock.Anything, mock.Anything).Return(nil, errors.New("bad json"))
	mp.On("Extract", mock.Anything, mock.Anything, mock.MatchedBy(func(r provider.ExtractRequest) bool {
		return assert.ObjectsAreEqual([]string{"2024", "2023"}, r.Years)
	})).Return(&provider.ExtractResult{
		Values: []model.FieldValue{value("Inventory", 7, 0.7, "")},
	}, nil)

	cfg := testConfig()
	p := New(cfg, mp, &fakeRenderer{}, nil, nil)
	result := p.Process(context.Background(), model.Document{Name: "acme.pdf"}, testPages(3))

	assert.True(t, result.YearsFallback)
	assert.Equal(t, []string{"2024", "2023"}, result.YearSet.Years())

	yearErrs := result.ErrorsOf(model.ErrYearDetectionFailure)
	require.Len(t, yearErrs, 3, "two page failures plus the fallback notice")
	assert.Equal(t, 0, yearErrs[2].PageNum)
	assert.Contains(t, yearErrs[2].Message, "fallback")

	// Only the first scan_pages financial pages are read for years.
	mp.AssertNumberOfCalls(t, "DetectYears", 2)
	assert.Equal(t, "7", slotString(result.Record.Entry("Inventory"), 0))
}

func TestProcess_NoFinancialPagesScansFirstPages(t *testing.T) {
	mp := &MockProvider{}
	mp.On("Classify", mock.Anything, mock.Anything).Return(classifyAs(10, 10, 10, 10), nil)
	mp.On("DetectYears", mock.Anything, onPage(1)).Return(&provider.YearsResult{Years: []string{"2022"}}, nil).Once()
	mp.On("DetectYears", mock.Anything, onPage(2)).Return(&provider.YearsResult{}, nil).Once()

	p := New(testConfig(), mp, &fakeRenderer{}, nil, nil)
	result := p.Process(context.Background(), model.Document{Name: "memo.pdf"}, testPages(4))

	assert.Empty(t, result.FinancialPages())
	assert.Equal(t, []string{"2022"}, result.YearSet.Years())
	assert.Empty(t, result.Record.Entries)
	mp.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
	mp.AssertExpectations(t)
}

func TestProcess_AmbiguityRecorded(t *testing.T) {
	mp := &MockProvider{}
	mp.On("Classify", mock.Anything, mock.Anything).Return(classifyAs(90, 0, 0, 0), nil)
	mp.On("DetectYears", mock.Anything, mock.Anything).Return(&provider.YearsResult{Years: []string{"2024"}}, nil)
	mp.On("Extract", mock.Anything, onPage(1), mock.Anything).Return(&provider.ExtractResult{
		Values: []model.FieldValue{value("Total Assets", 100, 0.6, "2024")},
	}, nil)
	mp.On("Extract", mock.Anything, onPage(2), mock.Anything).Return(&provider.ExtractResult{
		Values: []model.FieldValue{value("Total Assets", 110, 0.9, "2024")},
	}, nil)

	p := New(testConfig(), mp, &fakeRenderer{}, nil, nil)
	result := p.Process(context.Background(), model.Document{Name: "acme.pdf"}, testPages(2))

	amb := result.ErrorsOf(model.ErrCombinationAmbiguity)
	require.Len(t, amb, 1)
	assert.Equal(t, 1, amb[0].PageNum)
	assert.Equal(t, "110", slotString(result.Record.Entry("Total Assets"), 0))
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acme.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644))
	return path
}

func TestRun_PersistsAndCaches(t *testing.T) {
	mp := &MockProvider{}
	standardDocument(mp)
	st := newStore(t)
	path := writeInput(t)
	ctx := context.Background()

	p := New(testConfig(), mp, &fakeRenderer{pages: testPages(3)}, nil, st)
	first, err := p.Run(ctx, path)
	require.NoError(t, err)
	require.NotEmpty(t, first.RunID)
	assert.Equal(t, "acme.pdf", first.Document.Name)
	assert.Equal(t, 3, first.Document.Pages)
	assert.Len(t, first.Document.Hash, 64)

	run, err := st.GetRun(ctx, first.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, []string{"2024", "2023"}, run.Result.Years)
	assert.Equal(t, 2, run.Result.FinancialPages)

	fields, err := st.GetFields(ctx, first.RunID)
	require.NoError(t, err)
	assert.NotEmpty(t, fields)

	// Every provider expectation is .Once(), so a second run must be served
	// from the page cache.
	second, err := p.Run(ctx, path)
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, slotString(first.Record.Entry("Cash and Cash Equivalents"), 1),
		slotString(second.Record.Entry("Cash and Cash Equivalents"), 1))
	assert.Equal(t, model.TokenUsage{}, second.Usage)
	mp.AssertExpectations(t)

	p.AttachOutput(ctx, second, "/out/acme.csv", "runs/acme.csv")
	run, err = st.GetRun(ctx, second.RunID)
	require.NoError(t, err)
	assert.Equal(t, "/out/acme.csv", run.Result.OutputPath)
	assert.Equal(t, "runs/acme.csv", run.Result.ArtifactKey)
}

func TestRun_CacheDisabled(t *testing.T) {
	mp := &MockProvider{}
	mp.On("Classify", mock.Anything, mock.Anything).Return(classifyAs(1, 1, 1, 1), nil).Twice()
	mp.On("DetectYears", mock.Anything, mock.Anything).Return(&provider.YearsResult{Years: []string{"2024"}}, nil).Twice()

	cfg := testConfig()
	cfg.Cache.Enabled = false
	p := New(cfg, mp, &fakeRenderer{pages: testPages(1)}, nil, newStore(t))

	path := writeInput(t)
	_, err := p.Run(context.Background(), path)
	require.NoError(t, err)
	_, err = p.Run(context.Background(), path)
	require.NoError(t, err)
	mp.AssertExpectations(t)
}

func TestRun_RenderFailureMarksRunFailed(t *testing.T) {
	mp := &MockProvider{}
	st := newStore(t)
	r := &fakeRenderer{err: render.ErrNoPages}

	p := New(testConfig(), mp, r, nil, st)
	_, err := p.Run(context.Background(), writeInput(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, render.ErrNoPages)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	mp.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything)
}

func TestRun_MissingInput(t *testing.T) {
	r := &fakeRenderer{}
	p := New(testConfig(), &MockProvider{}, r, nil, nil)

	_, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: stat")
	assert.Equal(t, 0, r.calls)
}

func TestClassify_OnlyClassifies(t *testing.T) {
	mp := &MockProvider{}
	mp.On("Classify", mock.Anything, onPage(1)).Return(classifyAs(70, 71, 0, 0), nil)
	mp.On("Classify", mock.Anything, onPage(2)).Return(classifyAs(60, 60, 60, 60), nil)

	p := New(testConfig(), mp, &fakeRenderer{pages: testPages(2)}, nil, nil)
	result, err := p.Classify(context.Background(), writeInput(t))
	require.NoError(t, err)

	require.Len(t, result.Classifications, 2)
	assert.Equal(t, model.StatementIncome, result.Classifications[0].Label)
	assert.Equal(t, model.StatementBalanceSheet, result.Classifications[1].Label, "ties resolve to balance sheet")
	assert.Nil(t, result.Record)
	mp.AssertNotCalled(t, "DetectYears", mock.Anything, mock.Anything)
}

func TestDescribe(t *testing.T) {
	path := writeInput(t)
	doc, err := Describe(path)
	require.NoError(t, err)
	assert.Equal(t, "acme.pdf", doc.Name)
	assert.Equal(t, path, doc.Path)
	assert.Len(t, doc.Hash, 64)

	dir := t.TempDir()
	doc, err = Describe(dir)
	require.NoError(t, err)
	assert.Empty(t, doc.Hash)
	assert.Equal(t, filepath.Base(dir), doc.Name)
}

func TestExtractKind(t *testing.T) {
	a := extractKind(provider.ExtractRequest{Statement: model.StatementIncome, Fields: []string{"Net Income"}, Years: []string{"2024"}})
	b := extractKind(provider.ExtractRequest{Statement: model.StatementIncome, Fields: []string{"Net Income"}, Years: []string{"2023"}})
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "extract:income_statement:")
}
