package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/statement-cli/internal/model"
)

// Combiner folds per-page field values into a CombinedRecord. Every distinct
// year of a field keeps its own slot. Competing values for the same slot
// resolve by higher confidence, then lower page number, then the value
// already held, so the result does not depend on the order pages arrive in.
// Add is safe for concurrent use.
type Combiner struct {
	mu      sync.Mutex
	ys      model.YearSet
	entries map[string]*model.FieldEntry
	losers  map[slotKey][]*model.SlotValue
	dropped int
}

type slotKey struct {
	field string
	col   int
}

// NewCombiner creates a Combiner for a finalized YearSet.
func NewCombiner(ys model.YearSet) *Combiner {
	return &Combiner{
		ys:      ys,
		entries: make(map[string]*model.FieldEntry),
		losers:  make(map[slotKey][]*model.SlotValue),
	}
}

// Combine folds page results in order and returns the record.
func Combine(ys model.YearSet, pages ...[]model.FieldValue) *model.CombinedRecord {
	c := NewCombiner(ys)
	for _, values := range pages {
		c.Add(values...)
	}
	return c.Record()
}

// Add merges values into the record.
func (c *Combiner) Add(values ...model.FieldValue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range values {
		c.add(v)
	}
}

func (c *Combiner) add(v model.FieldValue) {
	if v.Field == "" || v.Value.IsZero() {
		return
	}

	year := v.Year
	col := 0
	if year == "" {
		year = c.ys.Latest()
	} else {
		var ok bool
		col, ok = c.ys.Column(year)
		if !ok {
			c.dropped++
			zap.L().Warn("combine: dropping value for year outside year set",
				zap.String("field", v.Field),
				zap.String("year", v.Year),
				zap.Int("page", v.PageNum),
				zap.Strings("years", c.ys.Years()),
			)
			return
		}
	}

	slot := &model.SlotValue{
		Value:      v.Value,
		Confidence: v.Confidence,
		Year:       year,
		PageNum:    v.PageNum,
	}

	entry, ok := c.entries[v.Field]
	if !ok {
		entry = &model.FieldEntry{
			Field:     v.Field,
			Source:    v.Source,
			FirstPage: v.PageNum,
		}
		c.entries[v.Field] = entry
	} else if v.PageNum < entry.FirstPage {
		entry.Source = v.Source
		entry.FirstPage = v.PageNum
	}

	held := entry.Slots[col]
	if held == nil {
		entry.Slots[col] = slot
		return
	}

	key := slotKey{field: v.Field, col: col}
	loser := slot
	if outranks(slot, held) {
		loser = held
		entry.Slots[col] = slot
	}
	c.losers[key] = append(c.losers[key], loser)
}

// outranks reports whether candidate should replace held.
func outranks(candidate, held *model.SlotValue) bool {
	if candidate.Confidence != held.Confidence {
		return candidate.Confidence > held.Confidence
	}
	return candidate.PageNum < held.PageNum
}

// Record returns a snapshot of the combined record. Pages lists the pages
// holding at least one slot, ascending.
func (c *Combiner) Record() *model.CombinedRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := &model.CombinedRecord{
		YearSet: c.ys,
		Entries: make(map[string]*model.FieldEntry, len(c.entries)),
	}
	seen := make(map[int]bool)
	for name, e := range c.entries {
		cp := *e
		rec.Entries[name] = &cp
		for _, s := range cp.Slots {
			if s != nil && !seen[s.PageNum] {
				seen[s.PageNum] = true
				rec.Pages = append(rec.Pages, s.PageNum)
			}
		}
	}
	sort.Ints(rec.Pages)
	return rec
}

// Ambiguities returns the conflicts seen so far, ordered by page then field.
// Every discarded value is reported against the current winner of its slot.
// Values equal to the winner are not conflicts.
func (c *Combiner) Ambiguities() []model.PageError {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []model.PageError
	for key, losers := range c.losers {
		winner := c.entries[key.field].Slots[key.col]
		for _, l := range losers {
			if winner.Value.Equal(l.Value) {
				continue
			}
			out = append(out, model.PageError{
				Kind:    model.ErrCombinationAmbiguity,
				PageNum: l.PageNum,
				Field:   key.field,
				Message: fmt.Sprintf("year %s: kept %s from page %d (confidence %.2f), discarded %s (confidence %.2f)",
					winner.Year, winner.Value, winner.PageNum, winner.Confidence, l.Value, l.Confidence),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PageNum != out[j].PageNum {
			return out[i].PageNum < out[j].PageNum
		}
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Message < out[j].Message
	})
	return out
}

// Dropped returns how many values were discarded for a year outside the set.
func (c *Combiner) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
