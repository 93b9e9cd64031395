package destination

import (
	"context"
	"strings"
	"testing"

	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ordersSchema = Schema{Tab: "ORDERS", Columns: []string{"order_id", "order_number", "quantity"}}

func TestEnsureHeadersInitializesEmptyTab(t *testing.T) {
	store := NewMemoryStore()
	w, _ := newTestWriter(store)

	check, err := w.EnsureHeaders(context.Background(), ordersSchema)
	require.NoError(t, err)
	assert.Equal(t, HeaderInitialized, check.Status)
	assert.True(t, store.HasTab("ORDERS"))
	assert.Equal(t, [][]string{{"order_id", "order_number", "quantity"}}, store.Tab("ORDERS"))
}

func TestEnsureHeadersCachesWithinRun(t *testing.T) {
	store := NewMemoryStore()
	store.SetTab("ORDERS", [][]string{{"order_id", "order_number", "quantity"}})
	w, _ := newTestWriter(store)

	_, err := w.EnsureHeaders(context.Background(), ordersSchema)
	require.NoError(t, err)

	store.SetTab("ORDERS", [][]string{{"broken"}})
	check, err := w.EnsureHeaders(context.Background(), ordersSchema)
	require.NoError(t, err)
	assert.Equal(t, HeaderOK, check.Status, "cached header should be trusted inside a run")

	w.BeginRun()
	check, err = w.EnsureHeaders(context.Background(), ordersSchema)
	require.NoError(t, err)
	assert.Equal(t, HeaderReinitialized, check.Status)
}

func TestEnsureHeadersMigratesReorderedColumns(t *testing.T) {
	store := NewMemoryStore()
	store.SetTab("ORDERS", [][]string{
		{"Quantity", "Order ID", "Legacy", "Order Number"},
		{"2", "5001", "x", "1001"},
		{"1", "5002", "", "1002"},
	})
	w, _ := newTestWriter(store)

	check, err := w.EnsureHeaders(context.Background(), ordersSchema)
	require.NoError(t, err)
	assert.Equal(t, HeaderReinitialized, check.Status)
	assert.Equal(t, 2, check.MigratedRows)
	assert.Equal(t, []string{"Legacy"}, check.Dropped)
	assert.Equal(t, [][]string{
		{"order_id", "order_number", "quantity"},
		{"5001", "1001", "2"},
		{"5002", "1002", "1"},
	}, store.Tab("ORDERS"))
}

func TestReplaceTabReinitializesCorruptedHeaderBeforeData(t *testing.T) {
	store := NewMemoryStore()
	store.SetTab("ORDERS", [][]string{
		{"quantity", "order_id", "garbage", "order_number", "extra"},
		{"9", "old", "x", "old", "y"},
		{"9", "old", "x", "old", "y"},
		{"9", "old", "x", "old", "y"},
	})
	w, _ := newTestWriter(store)

	check, err := w.ReplaceTab(context.Background(), ordersSchema, [][]string{{"5001", "1001", "2"}})
	require.NoError(t, err)
	assert.Equal(t, HeaderReinitialized, check.Status)

	assert.Equal(t, [][]string{
		{"order_id", "order_number", "quantity"},
		{"5001", "1001", "2"},
	}, store.Tab("ORDERS"))

	ops := store.Ops()
	headerAt, dataAt := -1, -1
	for i, op := range ops {
		if op == "write 'ORDERS'!A1:C1" && headerAt < 0 {
			headerAt = i
		}
		if strings.HasPrefix(op, "write 'ORDERS'!A2") && dataAt < 0 {
			dataAt = i
		}
	}
	require.GreaterOrEqual(t, headerAt, 0)
	require.GreaterOrEqual(t, dataAt, 0)
	assert.Less(t, headerAt, dataAt, "headers must be fixed before any data row is written")
}

func TestReplaceTabShrinkClearsTail(t *testing.T) {
	store := NewMemoryStore()
	w, _ := newTestWriter(store)
	ctx := context.Background()

	_, err := w.ReplaceTab(ctx, ordersSchema, [][]string{{"1", "1", "1"}, {"2", "2", "2"}, {"3", "3", "3"}})
	require.NoError(t, err)
	_, err = w.ReplaceTab(ctx, ordersSchema, [][]string{{"1", "1", "1"}})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"order_id", "order_number", "quantity"}, {"1", "1", "1"}}, store.Tab("ORDERS"))
}

type stubbornStore struct {
	*MemoryStore
}

func (s stubbornStore) Write(ctx context.Context, updates []Update) error {
	return nil
}

func TestSchemaMismatchWhenReinitializationDoesNotStick(t *testing.T) {
	mem := NewMemoryStore()
	mem.SetTab("ORDERS", [][]string{{"wrong"}})
	w, _ := newTestWriter(stubbornStore{mem})

	_, err := w.EnsureHeaders(context.Background(), ordersSchema)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSchemaMismatch))
	details := pkgerrors.As(err).Details().(SchemaMismatchDetails)
	assert.Equal(t, []string{"wrong"}, details.Actual)
}

func TestHeaderIndexUsesAliases(t *testing.T) {
	schema := Schema{Columns: []string{"order_id", "label_code"}, Aliases: map[string]string{"PSL": "label_code"}}
	idx := HeaderIndex(schema, []string{"psl", "Order ID"})
	assert.Equal(t, map[string]int{"label_code": 0, "order_id": 1}, idx)
	assert.Equal(t, "order_id", NormalizeHeader("  Order-ID "))
}

func TestSplitKeepsCoordinates(t *testing.T) {
	u := NewUpdate("RAW", grid.Coord{Row: 1, Col: 2}, [][]string{{"a"}, {"b"}, {"c"}})
	parts := split(u, 2)
	require.Len(t, parts, 2)
	assert.Equal(t, "'RAW'!C2:C3", parts[0].Range.A1())
	assert.Equal(t, "'RAW'!C4", parts[1].Range.A1())
}
