package scraping

import (
	"maps"
	"slices"
)

// MaxPreviewRows caps the number of mock rows admitted from the model.
const MaxPreviewRows = 5

// PreviewRow is one sparse mock result record: field name to display string.
type PreviewRow map[string]string

// PreviewTable holds preview rows and the column headers derived from them.
type PreviewTable struct {
	Columns []string     `json:"columns"`
	Rows    []PreviewRow `json:"rows"`
}

// NewPreviewTable computes the deduplicated column set across rows. Keys
// listed in order come first, in that order, when some row carries them; this
// is how the field order of the model's answer survives the map rows. Any
// remaining key follows in first-seen row order, sorted within its row.
func NewPreviewTable(rows []PreviewRow, order ...string) PreviewTable {
	table := PreviewTable{Columns: []string{}, Rows: []PreviewRow{}}
	for _, row := range rows {
		if len(row) > 0 {
			table.Rows = append(table.Rows, row)
		}
	}
	seen := make(map[string]struct{})
	add := func(key string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		table.Columns = append(table.Columns, key)
	}
	for _, key := range order {
		present := slices.ContainsFunc(table.Rows, func(r PreviewRow) bool {
			_, ok := r[key]
			return ok
		})
		if present {
			add(key)
		}
	}
	for _, row := range table.Rows {
		for _, key := range slices.Sorted(maps.Keys(row)) {
			add(key)
		}
	}
	return table
}

// Empty reports whether the table has nothing to show.
func (t PreviewTable) Empty() bool {
	return len(t.Rows) == 0
}

// Cell returns the value for column in row i, or "" when the row lacks it.
func (t PreviewTable) Cell(i int, column string) string {
	if i < 0 || i >= len(t.Rows) {
		return ""
	}
	return t.Rows[i][column]
}
