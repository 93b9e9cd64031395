package destination

import (
	"context"
	"strings"

	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/grid"
)

// Schema is the expected header row of a tab.
type Schema struct {
	Tab     string
	Columns []string
	// Aliases maps legacy header names (normalized) to a canonical column.
	Aliases map[string]string
}

// HeaderStatus is the outcome of a header-integrity check.
type HeaderStatus string

const (
	HeaderOK            HeaderStatus = "ok"
	HeaderInitialized   HeaderStatus = "initialized"
	HeaderReinitialized HeaderStatus = "reinitialized"
)

// HeaderCheck describes what the guard found and did.
type HeaderCheck struct {
	Tab          string
	Status       HeaderStatus
	Previous     []string
	MigratedRows int
	Dropped      []string
}

// SchemaMismatchDetails is attached to CodeSchemaMismatch errors.
type SchemaMismatchDetails struct {
	Tab      string   `json:"tab"`
	Expected []string `json:"expected"`
	Actual   []string `json:"actual"`
}

// EnsureHeaders verifies row 1 of the schema's tab and reinitializes it on
// mismatch, remapping existing data rows by header name so columns stay
// aligned. A header that still mismatches afterwards is CodeSchemaMismatch.
func (w *Writer) EnsureHeaders(ctx context.Context, schema Schema) (HeaderCheck, error) {
	if w.cachedHeader(schema) {
		return HeaderCheck{Tab: schema.Tab, Status: HeaderOK}, nil
	}
	if err := w.EnsureTab(ctx, schema.Tab); err != nil {
		return HeaderCheck{}, err
	}
	rows, err := w.Read(ctx, schema.Tab)
	if err != nil {
		return HeaderCheck{}, err
	}
	return w.guard(ctx, schema, rows, true)
}

// ReplaceTab rewrites every data row on the tab below a verified header and
// blanks rows left over from a longer previous write.
func (w *Writer) ReplaceTab(ctx context.Context, schema Schema, rows [][]string) (HeaderCheck, error) {
	if err := w.EnsureTab(ctx, schema.Tab); err != nil {
		return HeaderCheck{}, err
	}
	existing, err := w.Read(ctx, schema.Tab)
	if err != nil {
		return HeaderCheck{}, err
	}
	check, err := w.guard(ctx, schema, existing, false)
	if err != nil {
		return check, err
	}

	op := "replace " + schema.Tab
	if len(rows) > 0 {
		if err := w.Write(ctx, op, []Update{NewUpdate(schema.Tab, grid.Coord{Row: 1}, rows)}); err != nil {
			return check, err
		}
	}

	prevData := len(existing) - 1
	cols := len(schema.Columns)
	if wd := width(existing); wd > cols {
		cols = wd
	}
	if prevData > len(rows) && cols > 0 {
		tail := grid.Range{
			Tab:   schema.Tab,
			Start: grid.Coord{Row: 1 + len(rows), Col: 0},
			End:   grid.Coord{Row: prevData, Col: cols - 1},
		}
		if err := w.Clear(ctx, op+" tail", tail); err != nil {
			return check, err
		}
	}
	if extra := width(existing); extra > len(schema.Columns) && len(rows) > 0 {
		side := grid.Range{
			Tab:   schema.Tab,
			Start: grid.Coord{Row: 1, Col: len(schema.Columns)},
			End:   grid.Coord{Row: len(rows), Col: extra - 1},
		}
		if err := w.Clear(ctx, op+" stale columns", side); err != nil {
			return check, err
		}
	}
	return check, nil
}

func (w *Writer) cachedHeader(schema Schema) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	cached, ok := w.headers[schema.Tab]
	return ok && equalHeaders(cached, schema.Columns)
}

func (w *Writer) remember(tab string, header []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.headers[tab] = append([]string(nil), header...)
}

func (w *Writer) forget(tab string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.headers, tab)
}

func (w *Writer) guard(ctx context.Context, schema Schema, rows [][]string, migrate bool) (HeaderCheck, error) {
	check := HeaderCheck{Tab: schema.Tab, Status: HeaderOK}
	var current []string
	if len(rows) > 0 {
		current = trimRow(rows[0])
	}
	if equalHeaders(current, schema.Columns) {
		w.remember(schema.Tab, schema.Columns)
		return check, nil
	}

	w.forget(schema.Tab)
	check.Previous = append([]string(nil), current...)
	op := "reinit headers " + schema.Tab
	if len(current) == 0 && len(rows) <= 1 {
		check.Status = HeaderInitialized
	} else {
		check.Status = HeaderReinitialized
	}

	header := append([]string(nil), schema.Columns...)
	updates := []Update{NewUpdate(schema.Tab, grid.Coord{}, [][]string{header})}

	var data [][]string
	if len(rows) > 1 {
		data = rows[1:]
	}
	mapping, found := columnMapping(schema, current)
	if migrate && found > 0 && len(data) > 0 {
		migrated := make([][]string, len(data))
		for i, row := range data {
			out := make([]string, len(schema.Columns))
			for j, src := range mapping {
				out[j] = Cell(row, src)
			}
			migrated[i] = out
		}
		updates = append(updates, NewUpdate(schema.Tab, grid.Coord{Row: 1}, migrated))
		check.MigratedRows = len(migrated)
		check.Dropped = droppedColumns(current, mapping)
	}

	if w.logg != nil {
		logCtx := w.logg.WithFields(ctx, map[string]any{
			"tab":      schema.Tab,
			"previous": strings.Join(current, "|"),
			"expected": strings.Join(schema.Columns, "|"),
			"migrated": check.MigratedRows,
		})
		w.logg.Warn(logCtx, "header mismatch, reinitializing")
	}

	if err := w.Write(ctx, op, updates); err != nil {
		return check, err
	}
	if oldWidth := width(rows); oldWidth > len(schema.Columns) {
		last := 0
		if check.MigratedRows > 0 {
			last = check.MigratedRows
		}
		stale := grid.Range{
			Tab:   schema.Tab,
			Start: grid.Coord{Row: 0, Col: len(schema.Columns)},
			End:   grid.Coord{Row: last, Col: oldWidth - 1},
		}
		if err := w.Clear(ctx, op+" stale columns", stale); err != nil {
			return check, err
		}
	}

	verify, err := w.Read(ctx, schema.Tab)
	if err != nil {
		return check, err
	}
	var actual []string
	if len(verify) > 0 {
		actual = trimRow(verify[0])
	}
	if !equalHeaders(actual, schema.Columns) {
		return check, pkgerrors.New(pkgerrors.CodeSchemaMismatch, "header row of "+schema.Tab+" does not match after reinitialization").
			WithDetails(SchemaMismatchDetails{Tab: schema.Tab, Expected: schema.Columns, Actual: actual})
	}

	w.remember(schema.Tab, schema.Columns)
	return check, nil
}

func equalHeaders(actual, expected []string) bool {
	actual = trimRow(actual)
	if len(actual) != len(expected) {
		return false
	}
	for i := range expected {
		if strings.TrimSpace(actual[i]) != expected[i] {
			return false
		}
	}
	return true
}

// NormalizeHeader folds case, whitespace and separators so "Order ID",
// "order-id" and "order_id" compare equal.
func NormalizeHeader(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(name)), func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '.'
	})
	return strings.Join(fields, "_")
}

// HeaderIndex maps canonical column names to their position in header,
// honouring schema aliases.
func HeaderIndex(schema Schema, header []string) map[string]int {
	canonical := map[string]string{}
	for _, c := range schema.Columns {
		canonical[NormalizeHeader(c)] = c
	}
	for alias, target := range schema.Aliases {
		canonical[NormalizeHeader(alias)] = target
	}
	idx := map[string]int{}
	for i, h := range header {
		name, ok := canonical[NormalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}

func columnMapping(schema Schema, header []string) ([]int, int) {
	idx := HeaderIndex(schema, header)
	mapping := make([]int, len(schema.Columns))
	found := 0
	for j, c := range schema.Columns {
		if i, ok := idx[c]; ok {
			mapping[j] = i
			found++
		} else {
			mapping[j] = -1
		}
	}
	return mapping, found
}

func droppedColumns(header []string, mapping []int) []string {
	used := map[int]bool{}
	for _, i := range mapping {
		if i >= 0 {
			used[i] = true
		}
	}
	var dropped []string
	for i, h := range header {
		if !used[i] && strings.TrimSpace(h) != "" {
			dropped = append(dropped, h)
		}
	}
	return dropped
}
