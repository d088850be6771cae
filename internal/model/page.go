package model

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"math"
)

// StatementType represents the financial statement a page belongs to.
type StatementType string

const (
	StatementBalanceSheet StatementType = "balance_sheet"
	StatementIncome       StatementType = "income_statement"
	StatementCashFlow     StatementType = "cash_flow"
	StatementEquity       StatementType = "equity_statement"
	StatementNonFinancial StatementType = "non_financial"
)

// FinancialStatements returns the four statement types in tie-break priority order.
func FinancialStatements() []StatementType {
	return []StatementType{
		StatementBalanceSheet,
		StatementIncome,
		StatementCashFlow,
		StatementEquity,
	}
}

// IsFinancial returns true for every statement type except NonFinancial.
func (s StatementType) IsFinancial() bool {
	switch s {
	case StatementBalanceSheet, StatementIncome, StatementCashFlow, StatementEquity:
		return true
	}
	return false
}

// Code returns the short code used in prompts and logs (BS, IS, CF, ES).
func (s StatementType) Code() string {
	switch s {
	case StatementBalanceSheet:
		return "BS"
	case StatementIncome:
		return "IS"
	case StatementCashFlow:
		return "CF"
	case StatementEquity:
		return "ES"
	default:
		return "NF"
	}
}

// Title returns a human readable statement name.
func (s StatementType) Title() string {
	switch s {
	case StatementBalanceSheet:
		return "Balance Sheet"
	case StatementIncome:
		return "Income Statement"
	case StatementCashFlow:
		return "Cash Flow Statement"
	case StatementEquity:
		return "Statement of Changes in Equity"
	default:
		return "Non-Financial"
	}
}

// Scores holds per-statement confidence scores in [0,100].
type Scores struct {
	BalanceSheet    float64 `json:"balance_sheet"`
	IncomeStatement float64 `json:"income_statement"`
	CashFlow        float64 `json:"cash_flow"`
	EquityStatement float64 `json:"equity_statement"`
}

// Get returns the score for a statement type, 0 for NonFinancial.
func (s Scores) Get(st StatementType) float64 {
	switch st {
	case StatementBalanceSheet:
		return s.BalanceSheet
	case StatementIncome:
		return s.IncomeStatement
	case StatementCashFlow:
		return s.CashFlow
	case StatementEquity:
		return s.EquityStatement
	}
	return 0
}

// Clamp bounds every score to [0,100]. NaN becomes 0.
func (s Scores) Clamp() Scores {
	return Scores{
		BalanceSheet:    clampScore(s.BalanceSheet),
		IncomeStatement: clampScore(s.IncomeStatement),
		CashFlow:        clampScore(s.CashFlow),
		EquityStatement: clampScore(s.EquityStatement),
	}
}

// Best returns the highest scoring statement type. Equal scores resolve in
// FinancialStatements order.
func (s Scores) Best() (StatementType, float64) {
	best := StatementBalanceSheet
	bestScore := s.BalanceSheet
	for _, st := range FinancialStatements()[1:] {
		if v := s.Get(st); v > bestScore {
			best, bestScore = st, v
		}
	}
	return best, bestScore
}

func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// PageClassification is the outcome of classifying one page. Values are
// built once by NewPageClassification or FailedClassification and passed by value.
type PageClassification struct {
	PageNum int           `json:"page_num"`
	Scores  Scores        `json:"scores"`
	Label   StatementType `json:"label"`
	Error   string        `json:"error,omitempty"`
}

// NewPageClassification derives the page label from its scores. The label is
// the argmax statement when the top score strictly exceeds threshold, and
// NonFinancial otherwise.
func NewPageClassification(pageNum int, scores Scores, threshold float64) PageClassification {
	scores = scores.Clamp()
	label := StatementNonFinancial
	if best, score := scores.Best(); score > threshold {
		label = best
	}
	return PageClassification{
		PageNum: pageNum,
		Scores:  scores,
		Label:   label,
	}
}

// FailedClassification records a page whose classification call failed.
// The page is excluded from extraction.
func FailedClassification(pageNum int, err error) PageClassification {
	pc := PageClassification{
		PageNum: pageNum,
		Label:   StatementNonFinancial,
	}
	if err != nil {
		pc.Error = err.Error()
	}
	return pc
}

// IsFinancial reports whether the page should go through field extraction.
func (pc PageClassification) IsFinancial() bool {
	return pc.Error == "" && pc.Label.IsFinancial()
}

// PageImage is a single rendered page handed to the vision providers.
type PageImage struct {
	PageNum   int    `json:"page_num"`
	Path      string `json:"path,omitempty"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"-"`
}

// Hash returns the hex sha256 of the image bytes.
func (p PageImage) Hash() string {
	sum := sha256.Sum256(p.Data)
	return hex.EncodeToString(sum[:])
}

// Base64 returns the standard base64 encoding of the image bytes.
func (p PageImage) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Data)
}

// DataURL returns the image as a data: URL.
func (p PageImage) DataURL() string {
	mt := p.MediaType
	if mt == "" {
		mt = "image/png"
	}
	return "data:" + mt + ";base64," + p.Base64()
}
