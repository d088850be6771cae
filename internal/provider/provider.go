// Package provider turns page images into normalized classification, year and
// field results through a vision capable LLM.
package provider

import (
	"context"

	"github.com/sells-group/statement-cli/internal/model"
)

// Provider is a vision LLM backend. Every call returns one normalized,
// validated result type or an error.
type Provider interface {
	Name() string
	Model() string
	Classify(ctx context.Context, page model.PageImage) (*ClassifyResult, error)
	DetectYears(ctx context.Context, page model.PageImage) (*YearsResult, error)
	Extract(ctx context.Context, page model.PageImage, req ExtractRequest) (*ExtractResult, error)
}

// ClassifyResult holds the four statement scores for a page, in [0,100].
type ClassifyResult struct {
	Scores model.Scores     `json:"scores"`
	Usage  model.TokenUsage `json:"usage"`
}

// YearsResult holds the distinct reporting years printed on a page, as
// normalized four digit strings in the order the model listed them.
type YearsResult struct {
	Years []string         `json:"years"`
	Usage model.TokenUsage `json:"usage"`
}

// ExtractRequest describes what to pull off one financial page.
type ExtractRequest struct {
	Statement model.StatementType
	Fields    []string // template fields for the statement, in template order
	Years     []string // reporting years detected for the document, most recent first
}

// ExtractResult holds the field values read from a page. Year is empty when
// the model could not tell which column a value belongs to.
type ExtractResult struct {
	Values []model.FieldValue `json:"values"`
	Usage  model.TokenUsage   `json:"usage"`
}
