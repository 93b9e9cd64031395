package destination

import (
	"context"
	"sync"

	"github.com/aryanmotgi/Arcus-Sheets/pkg/grid"
)

// MemoryStore is an in-process Store used for dry runs and tests. Failures can
// be scripted per Write call.
type MemoryStore struct {
	mu     sync.Mutex
	tabs   map[string][][]string
	script []error
	writes int
	reads  int
	log    []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tabs: map[string][][]string{}}
}

// FailWrites queues errors returned by subsequent Write calls, in order. A nil
// entry lets that call succeed.
func (m *MemoryStore) FailWrites(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, errs...)
}

// SetTab replaces tab's contents.
func (m *MemoryStore) SetTab(tab string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tabs[tab] = cloneRows(rows)
}

// Tab returns a copy of tab's rows with trailing blank rows and cells removed.
func (m *MemoryStore) Tab(tab string) [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return compact(m.tabs[tab])
}

// HasTab reports whether tab exists.
func (m *MemoryStore) HasTab(tab string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tabs[tab]
	return ok
}

// Writes returns the number of Write calls, including failed ones.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Ops returns the ordered log of mutating calls, e.g. "write 'ORDERS'!A1:C1".
func (m *MemoryStore) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.log...)
}

func (m *MemoryStore) Read(ctx context.Context, tab string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	return compact(m.tabs[tab]), nil
}

func (m *MemoryStore) Write(ctx context.Context, updates []Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if len(m.script) > 0 {
		err := m.script[0]
		m.script = m.script[1:]
		if err != nil {
			return err
		}
	}
	for _, u := range updates {
		m.log = append(m.log, "write "+u.Range.A1())
		rows := m.tabs[u.Range.Tab]
		for i, values := range u.Values {
			r := u.Range.Start.Row + i
			for len(rows) <= r {
				rows = append(rows, nil)
			}
			row := rows[r]
			for j, v := range values {
				c := u.Range.Start.Col + j
				for len(row) <= c {
					row = append(row, "")
				}
				row[c] = v
			}
			rows[r] = row
		}
		m.tabs[u.Range.Tab] = rows
	}
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context, rng grid.Range) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, "clear "+rng.A1())
	rows := m.tabs[rng.Tab]
	for r := rng.Start.Row; r <= rng.End.Row && r < len(rows); r++ {
		for c := rng.Start.Col; c <= rng.End.Col && c < len(rows[r]); c++ {
			rows[r][c] = ""
		}
	}
	return nil
}

func (m *MemoryStore) EnsureTab(ctx context.Context, tab string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tabs[tab]; !ok {
		m.tabs[tab] = nil
		m.log = append(m.log, "add "+tab)
	}
	return nil
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// compact mirrors what the values API returns: no trailing blank cells or rows.
func compact(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, append([]string(nil), trimRow(r)...))
	}
	end := len(out)
	for end > 0 && len(out[end-1]) == 0 {
		end--
	}
	return out[:end]
}
