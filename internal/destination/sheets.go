package destination

import (
	"context"
	"sync"

	"github.com/aryanmotgi/Arcus-Sheets/pkg/grid"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/sheets"
)

type sheetsAPI interface {
	GetValues(ctx context.Context, rng string) ([][]string, error)
	BatchUpdateValues(ctx context.Context, data []sheets.ValueRange) error
	Clear(ctx context.Context, rng string) error
	Tabs(ctx context.Context) ([]string, error)
	AddTab(ctx context.Context, title string) error
}

// SheetsStore adapts the Sheets values API to Store. This is the only place
// coordinates become A1 strings.
type SheetsStore struct {
	api sheetsAPI

	mu    sync.Mutex
	known map[string]bool
}

func NewSheetsStore(api sheetsAPI) *SheetsStore {
	return &SheetsStore{api: api, known: map[string]bool{}}
}

func (s *SheetsStore) Read(ctx context.Context, tab string) ([][]string, error) {
	return s.api.GetValues(ctx, grid.TabRange(tab))
}

func (s *SheetsStore) Write(ctx context.Context, updates []Update) error {
	data := make([]sheets.ValueRange, 0, len(updates))
	for _, u := range updates {
		data = append(data, sheets.ValueRange{Range: u.Range.A1(), Values: u.Values})
	}
	return s.api.BatchUpdateValues(ctx, data)
}

func (s *SheetsStore) Clear(ctx context.Context, rng grid.Range) error {
	return s.api.Clear(ctx, rng.A1())
}

// EnsureTab lists tabs once per process and creates missing ones.
func (s *SheetsStore) EnsureTab(ctx context.Context, tab string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known[tab] {
		return nil
	}
	titles, err := s.api.Tabs(ctx)
	if err != nil {
		return err
	}
	for _, t := range titles {
		s.known[t] = true
	}
	if s.known[tab] {
		return nil
	}
	if err := s.api.AddTab(ctx, tab); err != nil {
		return err
	}
	s.known[tab] = true
	return nil
}

// Forget drops the tab identity cache so a deleted tab is recreated.
func (s *SheetsStore) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known = map[string]bool{}
}
