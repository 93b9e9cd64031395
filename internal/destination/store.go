// Package destination owns every mutation of the shared spreadsheet. Store is
// the raw per-call surface; Writer layers throttling, retry and header
// integrity on top of it and is the only type other packages write through.
package destination

import (
	"context"
	"strings"

	"github.com/aryanmotgi/Arcus-Sheets/pkg/grid"
)

// Store performs exactly one destination API call per method.
type Store interface {
	// Read returns every populated row on tab. Rows may be ragged.
	Read(ctx context.Context, tab string) ([][]string, error)
	// Write applies all updates as one batch.
	Write(ctx context.Context, updates []Update) error
	// Clear blanks the cells in rng.
	Clear(ctx context.Context, rng grid.Range) error
	// EnsureTab creates tab when it does not exist.
	EnsureTab(ctx context.Context, tab string) error
}

// Update writes Values into the rectangle anchored at Range.Start.
type Update struct {
	Range  grid.Range
	Values [][]string
}

// NewUpdate builds an update whose range exactly covers values.
func NewUpdate(tab string, start grid.Coord, values [][]string) Update {
	return Update{
		Range:  grid.Block(tab, start, len(values), width(values)),
		Values: values,
	}
}

func width(rows [][]string) int {
	w := 0
	for _, r := range rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// trimRow drops trailing blank cells.
func trimRow(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}

// Cell returns row[i] or "" when the row is short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
