package model

import "time"

// RunStatus represents the current state of a document run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusRendering   RunStatus = "rendering"
	RunStatusClassifying RunStatus = "classifying"
	RunStatusExtracting  RunStatus = "extracting"
	RunStatusCombining   RunStatus = "combining"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// Run represents a single extraction run for a document.
type Run struct {
	ID        string     `json:"id"`
	Document  Document   `json:"document"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the summary persisted for a finished run.
type RunResult struct {
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	Years          []string `json:"years"`
	FinancialPages int      `json:"financial_pages"`
	FieldsFound    int      `json:"fields_found"`
	ErrorCount     int      `json:"error_count"`
	TotalTokens    int      `json:"total_tokens"`
	TotalCost      float64  `json:"total_cost"`
	OutputPath     string   `json:"output_path,omitempty"`
	ArtifactKey    string   `json:"artifact_key,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Summarize builds the persisted run summary from a document result.
func (r *DocumentResult) Summarize() *RunResult {
	res := &RunResult{
		Provider:       r.Provider,
		Model:          r.Model,
		Years:          r.YearSet.Years(),
		FinancialPages: len(r.FinancialPages()),
		ErrorCount:     len(r.Errors),
		TotalTokens:    r.Usage.InputTokens + r.Usage.OutputTokens,
		TotalCost:      r.Usage.Cost,
	}
	if r.Record != nil {
		res.FieldsFound = len(r.Record.Entries)
	}
	return res
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
	Cost                float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.CacheCreationTokens += other.CacheCreationTokens
	t.CacheReadTokens += other.CacheReadTokens
	t.Cost += other.Cost
}
