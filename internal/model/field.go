package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Value is a cell value: a number when the statement printed one, text
// otherwise. The zero Value renders blank.
type Value struct {
	Number *float64
	Text   string
}

// NumberValue returns a numeric Value.
func NumberValue(f float64) Value {
	return Value{Number: &f}
}

// TextValue returns a text Value. Surrounding whitespace is trimmed.
func TextValue(s string) Value {
	return Value{Text: strings.TrimSpace(s)}
}

// IsZero reports whether the value is empty.
func (v Value) IsZero() bool {
	return v.Number == nil && v.Text == ""
}

// Float returns the numeric value and whether one is set.
func (v Value) Float() (float64, bool) {
	if v.Number == nil {
		return 0, false
	}
	return *v.Number, true
}

// String renders the value for tabular output. Numbers never use exponent
// notation.
func (v Value) String() string {
	if v.Number != nil {
		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	}
	return v.Text
}

// Equal compares two values by content.
func (v Value) Equal(o Value) bool {
	switch {
	case v.Number != nil && o.Number != nil:
		return *v.Number == *o.Number
	case v.Number == nil && o.Number == nil:
		return v.Text == o.Text
	}
	return false
}

// MarshalJSON writes numbers as JSON numbers, text as strings and the zero
// value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Number != nil {
		return []byte(strconv.FormatFloat(*v.Number, 'f', -1, 64)), nil
	}
	if v.Text == "" {
		return []byte("null"), nil
	}
	return json.Marshal(v.Text)
}

// UnmarshalJSON accepts a number, a string or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	*v = Value{}
	s := strings.TrimSpace(string(data))
	if s == "null" || s == "" {
		return nil
	}
	if s[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		v.Text = text
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	v.Number = &f
	return nil
}

// FieldValue is one value reported by the extractor for one page.
type FieldValue struct {
	Field      string        `json:"field"`
	Value      Value         `json:"value"`
	Confidence float64       `json:"confidence"`
	Year       string        `json:"year,omitempty"` // empty when the page did not say
	PageNum    int           `json:"page_num"`
	Source     StatementType `json:"source"`
}

// PageResult groups the field values extracted from a single page.
type PageResult struct {
	PageNum   int           `json:"page_num"`
	Statement StatementType `json:"statement"`
	Values    []FieldValue  `json:"values"`
	Usage     TokenUsage    `json:"usage"`
}
