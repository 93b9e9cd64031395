package overrides

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aryanmotgi/Arcus-Sheets/internal/destination"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/grid"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/logger"
	"github.com/shopspring/decimal"
)

// Columns is the header of the overrides tab.
var Columns = []string{
	"order_id",
	"order_number",
	"label_code",
	"shipping_label_cost",
	"notes",
	"updated_at",
	"updated_by",
}

// Aliases maps headers used by hand-built versions of the tab.
var Aliases = map[string]string{
	"order":          "order_number",
	"psl":            "label_code",
	"label":          "label_code",
	"manual_input":   "label_code",
	"shipping_cost":  "shipping_label_cost",
	"shipping":       "shipping_label_cost",
	"label_cost":     "shipping_label_cost",
	"shipping_label": "shipping_label_cost",
	"note":           "notes",
	"last_updated":   "updated_at",
	"modified_by":    "updated_by",
}

// Schema returns the overrides schema bound to tab.
func Schema(tab string) destination.Schema {
	return destination.Schema{Tab: tab, Columns: Columns, Aliases: Aliases}
}

// SheetStore keeps override records on a destination tab. Every read and write
// goes through the rate-limited writer.
type SheetStore struct {
	w      *destination.Writer
	schema destination.Schema
	logg   *logger.Logger
	now    func() time.Time
	tabs   KeyLocker

	mu sync.Mutex
}

// SheetOption configures a SheetStore.
type SheetOption func(*SheetStore)

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) SheetOption {
	return func(s *SheetStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTabLocker serializes row allocation on the tab across processes. Without
// it appends are only serialized inside this process.
func WithTabLocker(l KeyLocker) SheetOption {
	return func(s *SheetStore) {
		s.tabs = l
	}
}

func NewSheetStore(w *destination.Writer, tab string, logg *logger.Logger, opts ...SheetOption) *SheetStore {
	s := &SheetStore{w: w, schema: Schema(tab), logg: logg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type located struct {
	Record
	row int
}

// load reads the tab with a verified header. Rows keep their sheet positions.
func (s *SheetStore) load(ctx context.Context) ([]located, int, error) {
	if _, err := s.w.EnsureHeaders(ctx, s.schema); err != nil {
		return nil, 0, err
	}
	rows, err := s.w.Read(ctx, s.schema.Tab)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 1, nil
	}
	idx := destination.HeaderIndex(s.schema, rows[0])
	out := make([]located, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, ok := s.decode(ctx, idx, row, i+1)
		if !ok {
			continue
		}
		out = append(out, located{Record: rec, row: i + 1})
	}
	return out, len(rows), nil
}

func (s *SheetStore) decode(ctx context.Context, idx map[string]int, row []string, rowIndex int) (Record, bool) {
	rec, ok, costErr := decodeRecord(idx, row)
	if costErr != nil && s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrder(ctx, rec.OrderID, rec.OrderNumber), map[string]any{
			"row":   rowIndex + 1,
			"error": costErr.Error(),
		})
		s.logg.Warn(logCtx, "ignoring unparseable shipping label cost")
	}
	return rec, ok
}

// decodeRecord maps one data row by header index. costErr reports a shipping
// label cost that was present but unusable; the record is kept without it.
func decodeRecord(idx map[string]int, row []string) (rec Record, ok bool, costErr error) {
	get := func(col string) string {
		i, found := idx[col]
		if !found {
			return ""
		}
		return strings.TrimSpace(destination.Cell(row, i))
	}
	rec = Record{
		OrderID:     get("order_id"),
		OrderNumber: strings.TrimPrefix(get("order_number"), "#"),
		LabelCode:   get("label_code"),
		Notes:       get("notes"),
		UpdatedBy:   get("updated_by"),
	}
	if rec.OrderID == "" && rec.OrderNumber == "" {
		return Record{}, false, nil
	}
	if raw := get("shipping_label_cost"); raw != "" {
		cost, err := parseCost(raw)
		if err != nil {
			costErr = fmt.Errorf("shipping_label_cost %q: %w", raw, err)
		} else {
			rec.ShippingLabelCost = decimal.NewNullDecimal(cost)
		}
	}
	if raw := get("updated_at"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			rec.UpdatedAt = ts.UTC()
		}
	}
	return rec, true, costErr
}

func parseCost(raw string) (decimal.Decimal, error) {
	cost, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimPrefix(raw, "$"), ",", ""))
	if err != nil {
		return decimal.Zero, err
	}
	if cost.IsNegative() {
		return decimal.Zero, errNegativeCost
	}
	return cost, nil
}

// Cells renders a record in Columns order.
func (r Record) Cells() []string {
	cost := ""
	if r.ShippingLabelCost.Valid {
		cost = r.ShippingLabelCost.Decimal.StringFixed(2)
	}
	updated := ""
	if !r.UpdatedAt.IsZero() {
		updated = r.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return []string{r.OrderID, r.OrderNumber, r.LabelCode, cost, r.Notes, updated, r.UpdatedBy}
}

func (s *SheetStore) Get(ctx context.Context, orderID, orderNumber string) (Record, bool, error) {
	if orderID == "" && orderNumber == "" {
		return Record{}, false, errMissingKey()
	}
	records, err := s.ListAll(ctx)
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := lookup(records, orderID, orderNumber)
	return rec, ok, nil
}

func (s *SheetStore) ListAll(ctx context.Context) ([]Record, error) {
	rows, _, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]Record, len(rows))
	for i, r := range rows {
		records[i] = r.Record
	}
	kept, dropped := Dedupe(records)
	for _, d := range dropped {
		if s.logg == nil {
			break
		}
		s.logg.Warn(s.logg.WithOrder(ctx, d.OrderID, d.OrderNumber), "duplicate override row ignored, newest wins")
	}
	return kept, nil
}

func (s *SheetStore) Upsert(ctx context.Context, orderID, orderNumber string, patch Patch) (Record, error) {
	orderID, orderNumber = strings.TrimSpace(orderID), strings.TrimPrefix(strings.TrimSpace(orderNumber), "#")
	if orderID == "" && orderNumber == "" {
		return Record{}, errMissingKey()
	}

	unlock, err := s.lockTab(ctx)
	if err != nil {
		return Record{}, err
	}
	defer unlock()

	rows, total, err := s.load(ctx)
	if err != nil {
		return Record{}, err
	}
	records := make([]Record, len(rows))
	for i, r := range rows {
		records[i] = r.Record
	}

	target := total
	existing := Record{}
	if i := newest(records, match(records, orderID, orderNumber)); i >= 0 {
		target = rows[i].row
		existing = rows[i].Record
	}
	if target < 1 {
		target = 1
	}

	updated := patch.apply(existing, orderID, orderNumber, s.now())
	update := destination.NewUpdate(s.schema.Tab, grid.Coord{Row: target}, [][]string{updated.Cells()})
	if err := s.w.Write(ctx, "upsert override", []destination.Update{update}); err != nil {
		return Record{}, err
	}
	return updated, nil
}

func (s *SheetStore) Retire(ctx context.Context, orderNumber string) (int, error) {
	orderNumber = strings.TrimPrefix(strings.TrimSpace(orderNumber), "#")
	if orderNumber == "" {
		return 0, errMissingKey()
	}

	unlock, err := s.lockTab(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	rows, _, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	blank := make([]string, len(Columns))
	var updates []destination.Update
	for _, r := range rows {
		if r.Weak() && r.OrderNumber == orderNumber {
			updates = append(updates, destination.NewUpdate(s.schema.Tab, grid.Coord{Row: r.row}, [][]string{blank}))
		}
	}
	if len(updates) == 0 {
		return 0, nil
	}
	if err := s.w.Write(ctx, "retire weak overrides", updates); err != nil {
		return 0, err
	}
	return len(updates), nil
}

// lockTab takes the in-process mutex and, when configured, the shared tab lock.
func (s *SheetStore) lockTab(ctx context.Context) (func(), error) {
	s.mu.Lock()
	if s.tabs == nil {
		return s.mu.Unlock, nil
	}
	release, err := s.tabs.Lock(ctx, TabLockKey(s.schema.Tab))
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return func() {
		release()
		s.mu.Unlock()
	}, nil
}

// newest returns the most recently updated record sharing the key of the
// record at i, so an upsert never lands on a stale duplicate row.
func newest(records []Record, i int) int {
	if i < 0 {
		return i
	}
	best := i
	key := dedupeKey(records[i])
	for j, r := range records {
		if dedupeKey(r) == key && r.UpdatedAt.After(records[best].UpdatedAt) {
			best = j
		}
	}
	return best
}
