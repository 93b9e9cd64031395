package kpi

import (
	"context"
	"testing"
	"time"

	"github.com/aryanmotgi/Arcus-Sheets/internal/orders"
	"github.com/aryanmotgi/Arcus-Sheets/internal/overrides"
	"github.com/aryanmotgi/Arcus-Sheets/internal/reconcile"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/enums"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func line(id, number, price string, qty int, cost string, status enums.FulfillmentStatus) orders.LineRecord {
	return orders.LineRecord{
		OrderID:           id,
		OrderNumber:       number,
		CreatedAt:         time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		ProductName:       "Tee",
		Quantity:          qty,
		UnitPrice:         dec(price),
		UnitCost:          dec(cost),
		FulfillmentStatus: status,
	}
}

func scenario() ([]reconcile.Row, []overrides.Record) {
	raw := []orders.LineRecord{
		line("5001", "1001", "20", 2, "5", enums.FulfillmentStatusUnfulfilled),
		line("5002", "1002", "15", 1, "5", enums.FulfillmentStatusFulfilled),
	}
	ovs := []overrides.Record{{
		OrderID:           "5001",
		OrderNumber:       "1001",
		ShippingLabelCost: decimal.NewNullDecimal(dec("3.00")),
	}}
	res := reconcile.NewEngine(nil).Reconcile(context.Background(), raw, ovs)
	return res.Rows, ovs
}

func TestComputeScenario(t *testing.T) {
	rows, ovs := scenario()
	snap := Compute(rows, ovs, dec("809.32"))

	assert.Equal(t, "55.00", snap.Format(TotalRevenue))
	assert.Equal(t, "3", snap.Format(TotalUnits))
	assert.Equal(t, "15.00", snap.Format(TotalCOGS))
	assert.Equal(t, "40.00", snap.Format(GrossProfit))
	assert.Equal(t, "3.00", snap.Format(TotalShippingLabelCost))
	assert.Equal(t, "37.00", snap.Format(ContributionProfit))
	assert.Equal(t, "809.32", snap.Format(SetupCosts))
	assert.Equal(t, "-772.32", snap.Format(NetProfitAfterSetup))
	assert.Equal(t, "1", snap.Format(UnfulfilledCount))
	assert.Equal(t, "1", snap.Format(MissingLabelCostCount))
}

func TestComputeSumsDistinctOverrideCosts(t *testing.T) {
	older := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	ovs := []overrides.Record{
		{OrderID: "5001", ShippingLabelCost: decimal.NewNullDecimal(dec("9.99")), UpdatedAt: older},
		{OrderID: "5001", ShippingLabelCost: decimal.NewNullDecimal(dec("3.10")), UpdatedAt: older.Add(time.Hour)},
		{OrderID: "7000", ShippingLabelCost: decimal.NewNullDecimal(dec("1.05"))},
		{OrderID: "7001"},
	}
	snap := Compute(nil, ovs, decimal.Zero)
	assert.Equal(t, "4.15", snap.Format(TotalShippingLabelCost))
	assert.Equal(t, "-4.15", snap.Format(ContributionProfit))
}

func TestComputeKeepsExactSums(t *testing.T) {
	raw := []orders.LineRecord{
		line("1", "1", "0.1", 1, "0", enums.FulfillmentStatusPartial),
		line("2", "2", "0.2", 1, "0", enums.FulfillmentStatusUnknown),
	}
	rows := reconcile.NewEngine(nil).Reconcile(context.Background(), raw, nil).Rows
	snap := Compute(rows, nil, decimal.Zero)
	assert.True(t, snap[TotalRevenue].Equal(dec("0.3")))
	assert.Equal(t, "2", snap.Format(UnfulfilledCount))
	assert.Equal(t, "2", snap.Format(MissingLabelCostCount))
}

func TestKeyLabels(t *testing.T) {
	assert.Equal(t, "Gross Profit", GrossProfit.Label())
	assert.Equal(t, "custom", Key("custom").Label())
	assert.False(t, Key("custom").IsValid())
	for _, k := range Keys {
		assert.True(t, k.IsValid(), k)
	}
}
