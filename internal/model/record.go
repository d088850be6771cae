package model

import "sort"

// SlotValue is the value held in one Value_Year column of a field.
type SlotValue struct {
	Value      Value   `json:"value"`
	Confidence float64 `json:"confidence"`
	Year       string  `json:"year"`
	PageNum    int     `json:"page_num"`
}

// FieldEntry is one combined field with a slot per output year column.
type FieldEntry struct {
	Field     string               `json:"field"`
	Source    StatementType        `json:"source"`
	FirstPage int                  `json:"first_page"`
	Slots     [MaxYears]*SlotValue `json:"slots"`
}

// Populated returns the number of non-empty slots.
func (e *FieldEntry) Populated() int {
	n := 0
	for _, s := range e.Slots {
		if s != nil {
			n++
		}
	}
	return n
}

// Confidence returns the mean confidence of the populated slots.
func (e *FieldEntry) Confidence() float64 {
	var sum float64
	n := 0
	for _, s := range e.Slots {
		if s != nil {
			sum += s.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// SourcePages returns the distinct pages that filled a slot, ascending.
func (e *FieldEntry) SourcePages() []int {
	seen := make(map[int]bool, MaxYears)
	var pages []int
	for _, s := range e.Slots {
		if s != nil && !seen[s.PageNum] {
			seen[s.PageNum] = true
			pages = append(pages, s.PageNum)
		}
	}
	sort.Ints(pages)
	return pages
}

// CombinedRecord is the merged view of every extracted page of a document.
type CombinedRecord struct {
	YearSet YearSet                `json:"years"`
	Entries map[string]*FieldEntry `json:"entries"`
	Pages   []int                  `json:"pages"`
}

// Entry returns the entry for field, or nil.
func (r *CombinedRecord) Entry(field string) *FieldEntry {
	if r == nil {
		return nil
	}
	return r.Entries[field]
}

// Fields returns the field names in the record, sorted.
func (r *CombinedRecord) Fields() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Entries))
	for k := range r.Entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
