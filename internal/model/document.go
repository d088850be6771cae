package model

import "fmt"

// ErrorKind categorizes a non-fatal failure recorded while processing a document.
type ErrorKind string

const (
	ErrClassificationFailure ErrorKind = "classification_failure"
	ErrExtractionFailure     ErrorKind = "extraction_failure"
	ErrYearDetectionFailure  ErrorKind = "year_detection_failure"
	ErrCombinationAmbiguity  ErrorKind = "combination_ambiguity"
)

// PageError is a recorded, non-fatal failure. PageNum is 0 for document level
// errors.
type PageError struct {
	Kind    ErrorKind `json:"kind"`
	PageNum int       `json:"page_num,omitempty"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"message"`
}

func (e PageError) String() string {
	if e.PageNum > 0 {
		return fmt.Sprintf("%s (page %d): %s", e.Kind, e.PageNum, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Document identifies one input PDF.
type Document struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	Hash  string `json:"hash,omitempty"`
	Pages int    `json:"pages"`
}

// DocumentResult is the full outcome of one pipeline run.
type DocumentResult struct {
	RunID           string               `json:"run_id"`
	Document        Document             `json:"document"`
	Provider        string               `json:"provider"`
	Model           string               `json:"model"`
	Classifications []PageClassification `json:"classifications"`
	YearSet         YearSet              `json:"years"`
	YearsFallback   bool                 `json:"years_fallback"`
	Record          *CombinedRecord      `json:"record"`
	Errors          []PageError          `json:"errors,omitempty"`
	Usage           TokenUsage           `json:"usage"`
	Duration        int64                `json:"duration_ms"`
}

// FinancialPages returns the page numbers labeled as a financial statement.
func (r *DocumentResult) FinancialPages() []int {
	var out []int
	for _, c := range r.Classifications {
		if c.IsFinancial() {
			out = append(out, c.PageNum)
		}
	}
	return out
}

// ErrorsOf returns recorded errors of a given kind.
func (r *DocumentResult) ErrorsOf(kind ErrorKind) []PageError {
	var out []PageError
	for _, e := range r.Errors {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
