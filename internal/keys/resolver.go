// Package keys maps human-facing order numbers to stable order ids using the
// latest raw snapshot.
package keys

import (
	"context"
	"strings"
	"sync"

	"github.com/aryanmotgi/Arcus-Sheets/internal/orders"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/logger"
)

// Key identifies an order. A key with an OrderID is strong.
type Key struct {
	OrderID     string
	OrderNumber string
}

// Strong reports whether the stable identifier is known.
func (k Key) Strong() bool {
	return k.OrderID != ""
}

func (k Key) String() string {
	if k.Strong() {
		return "id:" + k.OrderID
	}
	return "number:" + k.OrderNumber
}

// SnapshotReader reads the raw snapshot tab, header included.
type SnapshotReader interface {
	Read(ctx context.Context, tab string) ([][]string, error)
}

type entry struct {
	orderID string
	created int64
}

// Resolver answers from an in-memory index of the raw snapshot. The index is
// loaded lazily from the snapshot tab, or installed directly by the sync right
// after it writes a new snapshot.
type Resolver struct {
	reader SnapshotReader
	tab    string
	logg   *logger.Logger

	mu       sync.RWMutex
	loaded   bool
	byNumber map[string]entry
	byID     map[string]string
}

func NewResolver(reader SnapshotReader, tab string, logg *logger.Logger) *Resolver {
	return &Resolver{reader: reader, tab: tab, logg: logg}
}

// Resolve returns the order id for an order number. It never fails: a missing
// or unreadable snapshot is a miss.
func (r *Resolver) Resolve(ctx context.Context, orderNumber string) (string, bool) {
	orderNumber = normalizeNumber(orderNumber)
	if orderNumber == "" {
		return "", false
	}
	r.ensure(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byNumber[orderNumber]
	return e.orderID, ok
}

// NumberFor is the reverse lookup.
func (r *Resolver) NumberFor(ctx context.Context, orderID string) (string, bool) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", false
	}
	r.ensure(ctx)
	r.mu.RLock()
	defer r.mu.RUnlock()
	number, ok := r.byID[orderID]
	return number, ok
}

// Complete fills in whichever half of key the snapshot knows.
func (r *Resolver) Complete(ctx context.Context, key Key) Key {
	if key.OrderID == "" {
		if id, ok := r.Resolve(ctx, key.OrderNumber); ok {
			key.OrderID = id
		}
	}
	if key.OrderNumber == "" {
		if number, ok := r.NumberFor(ctx, key.OrderID); ok {
			key.OrderNumber = number
		}
	}
	return key
}

// UseSnapshot replaces the index with records just written to the snapshot.
func (r *Resolver) UseSnapshot(records []orders.LineRecord) {
	byNumber, byID := index(records)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byNumber, r.byID, r.loaded = byNumber, byID, true
}

// Invalidate forces the next lookup to re-read the snapshot tab.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.byNumber, r.byID = nil, nil
}

// Len returns the number of indexed order numbers.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byNumber)
}

func (r *Resolver) ensure(ctx context.Context) {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded || r.reader == nil {
		return
	}

	rows, err := r.reader.Read(ctx, r.tab)
	if err != nil {
		if r.logg != nil {
			r.logg.Warn(r.logg.WithField(ctx, "tab", r.tab), "raw snapshot unavailable, key resolution disabled: "+err.Error())
		}
		return
	}
	records, _ := orders.DecodeRaw(rows)
	byNumber, byID := index(records)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		r.byNumber, r.byID, r.loaded = byNumber, byID, true
	}
}

// index keeps the most recently created order per number.
func index(records []orders.LineRecord) (map[string]entry, map[string]string) {
	byNumber := make(map[string]entry, len(records))
	byID := make(map[string]string, len(records))
	for _, rec := range records {
		number := normalizeNumber(rec.OrderNumber)
		id := strings.TrimSpace(rec.OrderID)
		if number == "" || id == "" {
			continue
		}
		byID[id] = number
		created := rec.CreatedAt.UnixNano()
		if rec.CreatedAt.IsZero() {
			created = 0
		}
		if prev, ok := byNumber[number]; ok && prev.created > created {
			continue
		}
		byNumber[number] = entry{orderID: id, created: created}
	}
	return byNumber, byID
}

func normalizeNumber(n string) string {
	return strings.TrimPrefix(strings.TrimSpace(n), "#")
}
