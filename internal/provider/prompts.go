package provider

import (
	"fmt"
	"strings"
)

const (
	opClassify = "classify"
	opYears    = "years"
	opExtract  = "extract"
)

const classifySystem = `You review scanned pages of audited financial statements.
For the page image, score how confident you are (0-100) that it is each of:
- balance_sheet: statement of financial position (assets, liabilities, net assets or equity)
- income_statement: statement of activities or operations (revenue, expenses, net income)
- cash_flow: statement of cash flows (operating, investing, financing activities)
- equity_statement: statement of changes in equity or net assets
Cover pages, auditor letters, tables of contents and notes score low on all four.
Scores are independent. Reply with JSON only.`

const classifyPrompt = `Score this page. Reply exactly as:
{"balance_sheet": <0-100>, "income_statement": <0-100>, "cash_flow": <0-100>, "equity_statement": <0-100>}`

const yearsSystem = `You read column headers of financial statements and report the fiscal years they cover.
Only report four digit years that label value columns, such as "2024" or "December 31, 2023".
Ignore years that appear only in prose, notes or dates of signature. Reply with JSON only.`

const yearsPrompt = `List the fiscal years of the value columns on this page, most recent first.
Reply exactly as: {"years": ["YYYY", ...]}. Reply {"years": []} if the page has no year columns.`

const extractSystem = `You transcribe figures from scanned financial statements into JSON.
Rules:
- Copy numbers exactly as printed. Amounts in parentheses are negative.
- A dash or blank cell means no value; omit it.
- Report the fiscal year of the column each value came from.
- Confidence is 0.0-1.0 and reflects legibility and certainty of the field match.
- Use the requested field names verbatim. Include other clearly labeled line items under their printed label.
Reply with JSON only.`

// extractPrompt lists the template fields for one statement.
func extractPrompt(req ExtractRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "This page is a %s.\n", req.Statement.Title())
	if len(req.Years) > 0 {
		fmt.Fprintf(&sb, "The document reports fiscal years: %s.\n", strings.Join(req.Years, ", "))
	}
	if len(req.Fields) > 0 {
		sb.WriteString("Extract these fields when present:\n")
		for _, f := range req.Fields {
			sb.WriteString("- ")
			sb.WriteString(f)
			sb.WriteByte('\n')
		}
	}
	sb.WriteString(`Reply exactly as:
{"fields": {"<field name>": [{"value": <number or text>, "year": "YYYY", "confidence": <0-1>}, ...], ...}}`)
	return sb.String()
}
