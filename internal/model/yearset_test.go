package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeYear(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024", "2024", true},
		{" 2023 ", "2023", true},
		{"FY2022", "2022", true},
		{"December 31, 2021", "2021", true},
		{"1899", "", false},
		{"2101", "", false},
		{"12024", "", false},
		{"", "", false},
		{"year", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := NormalizeYear(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewYearSet(t *testing.T) {
	t.Parallel()

	ys := NewYearSet("2022", "2024", "2023", "2024", "bogus", "1850")
	assert.Equal(t, []string{"2024", "2023", "2022"}, ys.Years())
	assert.Equal(t, "2024", ys.Latest())
	assert.Equal(t, 3, ys.Len())

	capped := NewYearSet("2019", "2020", "2021", "2022", "2023", "2024")
	assert.Equal(t, []string{"2024", "2023", "2022", "2021"}, capped.Years())

	empty := NewYearSet()
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, "", empty.Latest())
}

func TestYearSetColumn(t *testing.T) {
	t.Parallel()

	ys := NewYearSet("2024", "2023")

	idx, ok := ys.Column("2024")
	assert.True(t, ok)
	assert.Equal(t, 0, idx)

	idx, ok = ys.Column("2023")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	idx, ok = ys.Column("2022")
	assert.False(t, ok)
	assert.Equal(t, -1, idx)

	_, ok = ys.Column("")
	assert.False(t, ok)

	assert.Equal(t, "", ys.At(2))
	assert.Equal(t, "2023", ys.At(1))
}

func TestYearSetColumnDeterministic(t *testing.T) {
	t.Parallel()

	a := NewYearSet("2021", "2024", "2023")
	b := NewYearSet("2023", "2021", "2024")
	for _, y := range []string{"2024", "2023", "2022", "2021", "2020"} {
		ia, oka := a.Column(y)
		ib, okb := b.Column(y)
		assert.Equal(t, ia, ib, y)
		assert.Equal(t, oka, okb, y)

		again, _ := a.Column(y)
		assert.Equal(t, ia, again, y)
	}
}

func TestYearSetYearsIsCopy(t *testing.T) {
	t.Parallel()

	ys := NewYearSet("2024", "2023")
	years := ys.Years()
	years[0] = "1999"
	assert.Equal(t, "2024", ys.Latest())
}

func TestYearSetJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewYearSet("2023", "2024"))
	require.NoError(t, err)
	assert.JSONEq(t, `["2024","2023"]`, string(data))

	var back YearSet
	require.NoError(t, json.Unmarshal([]byte(`["2022","2024"]`), &back))
	assert.Equal(t, []string{"2024", "2022"}, back.Years())
}

func TestColumnName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Value_Year_1", ColumnName(0))
	assert.Equal(t, "Value_Year_4", ColumnName(3))
}
