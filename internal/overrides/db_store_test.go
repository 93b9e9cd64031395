package overrides

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aryanmotgi/Arcus-Sheets/pkg/db/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OrderOverride{}))
	return conn
}

func TestDBStoreUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewDBStore(newTestDB(t))
	clock := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	created, err := store.Upsert(ctx, "5001", "#1001", Patch{ShippingLabelCost: ptr(decimal.RequireFromString("4.85"))})
	require.NoError(t, err)
	assert.Equal(t, "1001", created.OrderNumber)

	clock = clock.Add(time.Hour)
	updated, err := store.Upsert(ctx, "", "1001", Patch{LabelCode: ptr("Z9")})
	require.NoError(t, err)
	assert.Equal(t, "5001", updated.OrderID)
	assert.Equal(t, "Z9", updated.LabelCode)

	rec, ok, err := store.Get(ctx, "5001", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Z9", rec.LabelCode)
	assert.True(t, rec.ShippingLabelCost.Decimal.Equal(decimal.RequireFromString("4.85")))
	assert.True(t, rec.UpdatedAt.Equal(clock))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDBStoreWeakRecordUpgrade(t *testing.T) {
	ctx := context.Background()
	store := NewDBStore(newTestDB(t))

	_, err := store.Upsert(ctx, "", "1002", Patch{Notes: ptr("weak")})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, "7777", "1003", Patch{Notes: ptr("other")})
	require.NoError(t, err)

	upgraded, err := store.Upsert(ctx, "5002", "1002", Patch{UpdatedBy: SyncUpdatedBy})
	require.NoError(t, err)
	assert.Equal(t, "5002", upgraded.OrderID)
	assert.Equal(t, "weak", upgraded.Notes)

	_, err = store.Upsert(ctx, "5003", "1003", Patch{Notes: ptr("mine")})
	require.NoError(t, err)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3, "a strong record under another id is never reused")
}

func TestDBStoreRequiresKey(t *testing.T) {
	store := NewDBStore(newTestDB(t))
	_, err := store.Upsert(context.Background(), " ", "", Patch{})
	require.Error(t, err)
}

func TestDBStoreRetireRemovesOnlyWeakRows(t *testing.T) {
	ctx := context.Background()
	store := NewDBStore(newTestDB(t))

	_, err := store.Upsert(ctx, "", "1001", Patch{LabelCode: ptr("weak")})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, "5001", "", Patch{LabelCode: ptr("strong")})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, "5002", "1002", Patch{LabelCode: ptr("keep")})
	require.NoError(t, err)

	n, err := store.Retire(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = store.Retire(ctx, "1002")
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, rec := range all {
		assert.False(t, rec.Weak())
	}
}
