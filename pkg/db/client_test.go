package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aryanmotgi/Arcus-Sheets/pkg/db/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.OrderOverride{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	// Mirrors the partial index of the order_overrides migration.
	if err := conn.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS order_overrides_order_id_key ON order_overrides (order_id) WHERE order_id <> ''`).Error; err != nil {
		t.Fatalf("failed to create unique index: %v", err)
	}
	return conn
}

func override(orderID, orderNumber string) *models.OrderOverride {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.OrderOverride{
		ID:          uuid.New(),
		OrderID:     orderID,
		OrderNumber: orderNumber,
		UpdatedBy:   "ops_agent",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func countOverrides(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.OrderOverride{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return count
}

func TestOrderIDUniqueIndexAllowsManyWeakRows(t *testing.T) {
	conn := newTestDB(t)

	for _, number := range []string{"1001", "1002"} {
		if err := conn.Create(override("", number)).Error; err != nil {
			t.Fatalf("weak override %s: %v", number, err)
		}
	}
	if err := conn.Create(override("5001", "1001")).Error; err != nil {
		t.Fatalf("strong override: %v", err)
	}

	err := conn.Create(override("5001", "1003")).Error
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation on duplicate order id, got %v", err)
	}
	if got := countOverrides(t, conn); got != 3 {
		t.Fatalf("expected 3 overrides, got %d", got)
	}
}

func TestPing(t *testing.T) {
	client := &Client{conn: newTestDB(t)}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}
