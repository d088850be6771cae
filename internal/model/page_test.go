package model

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPageClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		scores    Scores
		threshold float64
		want      StatementType
	}{
		{"clear balance sheet", Scores{BalanceSheet: 92, IncomeStatement: 10}, 50, StatementBalanceSheet},
		{"clear cash flow", Scores{CashFlow: 88, IncomeStatement: 40}, 50, StatementCashFlow},
		{"below threshold", Scores{BalanceSheet: 49, IncomeStatement: 30}, 50, StatementNonFinancial},
		{"equal to threshold is not enough", Scores{EquityStatement: 50}, 50, StatementNonFinancial},
		{"tie prefers balance sheet", Scores{BalanceSheet: 80, IncomeStatement: 80}, 50, StatementBalanceSheet},
		{"tie prefers income over cash flow", Scores{IncomeStatement: 75, CashFlow: 75, EquityStatement: 75}, 50, StatementIncome},
		{"tie prefers cash flow over equity", Scores{CashFlow: 60, EquityStatement: 60}, 50, StatementCashFlow},
		{"all zero", Scores{}, 50, StatementNonFinancial},
		{"out of range clamped", Scores{IncomeStatement: 180}, 50, StatementIncome},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pc := NewPageClassification(3, tt.scores, tt.threshold)
			assert.Equal(t, tt.want, pc.Label)
			assert.Equal(t, 3, pc.PageNum)
			assert.Equal(t, tt.want.IsFinancial(), pc.IsFinancial())
		})
	}
}

func TestScoresClamp(t *testing.T) {
	t.Parallel()

	got := Scores{BalanceSheet: -5, IncomeStatement: 101, CashFlow: math.NaN(), EquityStatement: 42}.Clamp()
	assert.Equal(t, Scores{BalanceSheet: 0, IncomeStatement: 100, CashFlow: 0, EquityStatement: 42}, got)
}

func TestFailedClassification(t *testing.T) {
	t.Parallel()

	pc := FailedClassification(7, errors.New("timeout"))
	assert.Equal(t, StatementNonFinancial, pc.Label)
	assert.Equal(t, "timeout", pc.Error)
	assert.False(t, pc.IsFinancial())
}

func TestStatementTypeCodes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "BS", StatementBalanceSheet.Code())
	assert.Equal(t, "IS", StatementIncome.Code())
	assert.Equal(t, "CF", StatementCashFlow.Code())
	assert.Equal(t, "ES", StatementEquity.Code())
	assert.Equal(t, "NF", StatementNonFinancial.Code())
	assert.False(t, StatementNonFinancial.IsFinancial())
	assert.Len(t, FinancialStatements(), 4)
}

func TestPageImage(t *testing.T) {
	t.Parallel()

	img := PageImage{PageNum: 1, MediaType: "image/png", Data: []byte("abc")}
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", img.Hash())
	assert.Equal(t, "YWJj", img.Base64())
	assert.Equal(t, "data:image/png;base64,YWJj", img.DataURL())

	img.MediaType = ""
	assert.Equal(t, "data:image/png;base64,YWJj", img.DataURL())
}
