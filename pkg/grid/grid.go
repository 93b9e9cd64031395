// Package grid converts zero-based (row, column) coordinates into the A1
// notation used by the spreadsheet API. Conversion only happens at the
// writer boundary; everything upstream works with integer coordinates.
package grid

import (
	"fmt"
	"strconv"
	"strings"
)

// Coord is a zero-based cell position.
type Coord struct {
	Row int
	Col int
}

// Range is an inclusive rectangle of cells on one tab.
type Range struct {
	Tab   string
	Start Coord
	End   Coord
}

// ColumnLetters returns the bijective base-26 column name for a zero-based index
// (0 -> A, 25 -> Z, 26 -> AA).
func ColumnLetters(col int) string {
	if col < 0 {
		return ""
	}
	var buf [8]byte
	i := len(buf)
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		i--
		buf[i] = byte('A' + (n-1)%26)
	}
	return string(buf[i:])
}

// ColumnIndex parses column letters back into a zero-based index.
func ColumnIndex(letters string) (int, error) {
	if letters == "" {
		return 0, fmt.Errorf("empty column")
	}
	n := 0
	for _, r := range strings.ToUpper(letters) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column %q", letters)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, nil
}

// A1 renders the coordinate as a cell reference, e.g. {0,0} -> "A1".
func (c Coord) A1() string {
	return ColumnLetters(c.Col) + strconv.Itoa(c.Row+1)
}

// Block returns the range anchored at start covering rows x cols cells.
// Empty dimensions collapse to the start cell.
func Block(tab string, start Coord, rows, cols int) Range {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	return Range{
		Tab:   tab,
		Start: start,
		End:   Coord{Row: start.Row + rows - 1, Col: start.Col + cols - 1},
	}
}

// Rows returns the number of rows the range spans.
func (r Range) Rows() int {
	return r.End.Row - r.Start.Row + 1
}

// Cols returns the number of columns the range spans.
func (r Range) Cols() int {
	return r.End.Col - r.Start.Col + 1
}

// A1 renders the range with a quoted tab name, e.g. 'ORDERS'!A1:C10.
func (r Range) A1() string {
	ref := r.Start.A1()
	if r.End != r.Start {
		ref += ":" + r.End.A1()
	}
	if r.Tab == "" {
		return ref
	}
	return QuoteTab(r.Tab) + "!" + ref
}

func (r Range) String() string {
	return r.A1()
}

// Columns renders a whole-column span such as 'ORDERS'!A:M, used for clears.
func Columns(tab string, from, to int) string {
	ref := ColumnLetters(from) + ":" + ColumnLetters(to)
	if tab == "" {
		return ref
	}
	return QuoteTab(tab) + "!" + ref
}

// TabRange addresses every cell on a tab.
func TabRange(tab string) string {
	return QuoteTab(tab)
}

// QuoteTab wraps a tab name in single quotes, doubling embedded quotes.
func QuoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

// ParseA1 parses a single-cell reference such as "C7" into a zero-based coordinate.
func ParseA1(ref string) (Coord, error) {
	if i := strings.LastIndex(ref, "!"); i >= 0 {
		ref = ref[i+1:]
	}
	split := strings.IndexFunc(ref, func(r rune) bool { return r >= '0' && r <= '9' })
	if split <= 0 {
		return Coord{}, fmt.Errorf("invalid cell reference %q", ref)
	}
	col, err := ColumnIndex(ref[:split])
	if err != nil {
		return Coord{}, err
	}
	row, err := strconv.Atoi(ref[split:])
	if err != nil || row < 1 {
		return Coord{}, fmt.Errorf("invalid row in %q", ref)
	}
	return Coord{Row: row - 1, Col: col}, nil
}
