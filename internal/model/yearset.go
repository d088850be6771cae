package model

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// MaxYears is the number of Value_Year columns in the output template.
const MaxYears = 4

const (
	minYear = 1900
	maxYear = 2100
)

var yearPattern = regexp.MustCompile(`(?:^|[^0-9])((?:19|20|21)[0-9]{2})(?:[^0-9]|$)`)

// NormalizeYear extracts a four digit year in [1900,2100] from s. Inputs such
// as "FY2024", "2024 " or "December 31, 2023" are accepted.
func NormalizeYear(s string) (string, bool) {
	m := yearPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < minYear || n > maxYear {
		return "", false
	}
	return m[1], true
}

// YearSet is the ordered set of reporting years found in a document, most
// recent first. Index i maps to output column Value_Year_{i+1}. A YearSet is
// immutable once built, so it can be shared between goroutines.
type YearSet struct {
	years []string
}

// NewYearSet normalizes, dedupes and sorts years descending, keeping at most
// MaxYears. Invalid entries are ignored.
func NewYearSet(years ...string) YearSet {
	seen := make(map[string]bool, len(years))
	out := make([]string, 0, len(years))
	for _, y := range years {
		norm, ok := NormalizeYear(y)
		if !ok || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	if len(out) > MaxYears {
		out = out[:MaxYears]
	}
	return YearSet{years: out}
}

// Column returns the zero based column index for year. Years outside the set
// return (-1, false).
func (ys YearSet) Column(year string) (int, bool) {
	norm, ok := NormalizeYear(year)
	if !ok {
		return -1, false
	}
	for i, y := range ys.years {
		if y == norm {
			return i, true
		}
	}
	return -1, false
}

// Len returns the number of years in the set.
func (ys YearSet) Len() int { return len(ys.years) }

// Latest returns the most recent year, or "" for an empty set.
func (ys YearSet) Latest() string {
	if len(ys.years) == 0 {
		return ""
	}
	return ys.years[0]
}

// At returns the year in column i, or "" when the column is unused.
func (ys YearSet) At(i int) string {
	if i < 0 || i >= len(ys.years) {
		return ""
	}
	return ys.years[i]
}

// Years returns a copy of the years, most recent first.
func (ys YearSet) Years() []string {
	out := make([]string, len(ys.years))
	copy(out, ys.years)
	return out
}

// ColumnName returns the template header for column i.
func ColumnName(i int) string {
	return "Value_Year_" + strconv.Itoa(i+1)
}

// MarshalJSON writes the set as a JSON array of strings.
func (ys YearSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(ys.Years())
}

// UnmarshalJSON rebuilds the set through NewYearSet.
func (ys *YearSet) UnmarshalJSON(data []byte) error {
	var years []string
	if err := json.Unmarshal(data, &years); err != nil {
		return err
	}
	*ys = NewYearSet(years...)
	return nil
}
