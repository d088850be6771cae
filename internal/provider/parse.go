package provider

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/statement-cli/internal/model"
)

// defaultConfidence is assigned to extracted values the model gave no
// confidence for.
const defaultConfidence = 0.5

// decodeResponse turns a model reply into out. The reply is parsed as
// strict JSON first, then repaired, then read as Hjson; the first candidate
// that matches schema wins.
func decodeResponse(text string, schema *jsonschema.Schema, out any) error {
	body := extractJSON(text)
	if body == "" {
		return eris.New("provider: no JSON object in response")
	}

	var lastErr error
	for _, candidate := range candidates(body) {
		var doc any
		if err := json.Unmarshal(candidate, &doc); err != nil {
			lastErr = err
			continue
		}
		if err := validate(schema, doc); err != nil {
			lastErr = err
			continue
		}
		if err := json.Unmarshal(candidate, out); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return eris.Wrapf(lastErr, "provider: unparseable response %q", truncate(body, 200))
}

// candidates yields the strict, repaired and Hjson renderings of body.
func candidates(body string) [][]byte {
	out := [][]byte{[]byte(body)}

	if repaired, err := jsonrepair.RepairJSON(body); err == nil && repaired != body {
		out = append(out, []byte(repaired))
	}

	var v any
	if err := hjson.Unmarshal([]byte(body), &v); err == nil {
		if b, err := json.Marshal(v); err == nil {
			out = append(out, b)
		}
	}
	return out
}

// extractJSON strips markdown fences and surrounding prose, returning the
// outermost JSON object.
func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, '}')
	if end < start {
		// Truncated reply; let the repair pass close it.
		return strings.TrimSpace(s[start:])
	}
	return strings.TrimSpace(s[start : end+1])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// normalizeScores clamps reported scores into [0,100]. The prompt asks for
// 0-100, so small values are taken at face value and stay below threshold.
func normalizeScores(s model.Scores) model.Scores {
	return s.Clamp()
}

// percentConfidenceFloor is the smallest reported confidence read as a
// percentage. Values between 1 and the floor are clamped to 1.
const percentConfidenceFloor = 2

// normalizeConfidence maps a reported confidence into [0,1]. Percentages
// are scaled down; a missing value gets defaultConfidence.
func normalizeConfidence(c *float64) float64 {
	if c == nil || math.IsNaN(*c) {
		return defaultConfidence
	}
	v := *c
	if v >= percentConfidenceFloor {
		v /= 100
	}
	return math.Max(0, math.Min(1, v))
}

// normalizeYear accepts a year as string or number. Unrecognized years
// come back empty.
func normalizeYear(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
	} else {
		s = string(raw)
	}
	y, ok := model.NormalizeYear(s)
	if !ok {
		return ""
	}
	return y
}

// parseValue converts a JSON value into a model.Value. Accounting notation
// such as "(1,234)" or "$ 1,234.50" becomes a number; placeholders such as
// "-" become empty.
func parseValue(raw json.RawMessage) model.Value {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return model.Value{}
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return model.Value{}
		}
		return parseAmount(s)
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return model.Value{}
	}
	return model.NumberValue(f)
}

var emptyPlaceholders = map[string]bool{
	"":     true,
	"-":    true,
	"--":   true,
	"—":    true,
	"–":    true,
	"n/a":  true,
	"na":   true,
	"none": true,
	"null": true,
}

var amountReplacer = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "", "\u00a0", "")

func parseAmount(s string) model.Value {
	s = strings.TrimSpace(s)
	if emptyPlaceholders[strings.ToLower(s)] {
		return model.Value{}
	}

	num := amountReplacer.Replace(s)
	negative := false
	if strings.HasPrefix(num, "(") && strings.HasSuffix(num, ")") {
		negative = true
		num = num[1 : len(num)-1]
	}
	if strings.HasSuffix(num, "-") && len(num) > 1 {
		negative = !negative
		num = num[:len(num)-1]
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return model.TextValue(s)
	}
	if negative {
		f = -f
	}
	return model.NumberValue(f)
}
