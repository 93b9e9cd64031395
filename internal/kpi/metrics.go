// Package kpi recomputes the fixed set of named metrics from the merged view
// and the override store.
package kpi

import (
	"github.com/aryanmotgi/Arcus-Sheets/internal/overrides"
	"github.com/aryanmotgi/Arcus-Sheets/internal/reconcile"
	"github.com/shopspring/decimal"
)

// Key names a metric.
type Key string

const (
	TotalRevenue           Key = "total_revenue"
	TotalUnits             Key = "total_units"
	TotalCOGS              Key = "total_cogs"
	TotalShippingLabelCost Key = "total_shipping_label_cost"
	GrossProfit            Key = "gross_profit"
	ContributionProfit     Key = "contribution_profit"
	SetupCosts             Key = "setup_costs"
	NetProfitAfterSetup    Key = "net_profit_after_setup"
	UnfulfilledCount       Key = "unfulfilled_count"
	MissingLabelCostCount  Key = "missing_label_cost_count"
)

// Keys lists every metric in table order.
var Keys = []Key{
	TotalRevenue,
	TotalUnits,
	TotalCOGS,
	TotalShippingLabelCost,
	GrossProfit,
	ContributionProfit,
	SetupCosts,
	NetProfitAfterSetup,
	UnfulfilledCount,
	MissingLabelCostCount,
}

var labels = map[Key]string{
	TotalRevenue:           "Total Revenue",
	TotalUnits:             "Total Units Sold",
	TotalCOGS:              "Total COGS",
	TotalShippingLabelCost: "Total Shipping Label Cost",
	GrossProfit:            "Gross Profit",
	ContributionProfit:     "Contribution Profit",
	SetupCosts:             "Setup Costs",
	NetProfitAfterSetup:    "Net Profit After Setup",
	UnfulfilledCount:       "Unfulfilled Orders",
	MissingLabelCostCount:  "Missing Label Cost",
}

// Label returns the display label of k.
func (k Key) Label() string {
	if l, ok := labels[k]; ok {
		return l
	}
	return string(k)
}

// IsValid reports whether k is one of the fixed metrics.
func (k Key) IsValid() bool {
	_, ok := labels[k]
	return ok
}

// Count reports whether the metric is a count rather than money.
func (k Key) Count() bool {
	switch k {
	case TotalUnits, UnfulfilledCount, MissingLabelCostCount:
		return true
	}
	return false
}

// Snapshot holds one value per metric key.
type Snapshot map[Key]decimal.Decimal

// Format renders the value of k for the destination: counts as integers,
// money with two decimals.
func (s Snapshot) Format(k Key) string {
	v := s[k]
	if k.Count() {
		return v.Round(0).String()
	}
	return v.StringFixed(2)
}

// Compute applies the metric formulas. Sums accumulate exactly; nothing is
// rounded here.
func Compute(rows []reconcile.Row, records []overrides.Record, setupCosts decimal.Decimal) Snapshot {
	revenue, cogs := decimal.Zero, decimal.Zero
	var units, unfulfilled, missing int64
	for _, r := range rows {
		revenue = revenue.Add(r.Revenue())
		cogs = cogs.Add(r.COGS())
		units += int64(r.Quantity)
		if r.FulfillmentStatus.Open() {
			unfulfilled++
		}
		if !r.Overridden || !r.ShippingLabelCost.Valid {
			missing++
		}
	}

	shipping := decimal.Zero
	kept, _ := overrides.Dedupe(records)
	for _, rec := range kept {
		if rec.ShippingLabelCost.Valid {
			shipping = shipping.Add(rec.ShippingLabelCost.Decimal)
		}
	}

	gross := revenue.Sub(cogs)
	contribution := gross.Sub(shipping)
	return Snapshot{
		TotalRevenue:           revenue,
		TotalUnits:             decimal.NewFromInt(units),
		TotalCOGS:              cogs,
		TotalShippingLabelCost: shipping,
		GrossProfit:            gross,
		ContributionProfit:     contribution,
		SetupCosts:             setupCosts,
		NetProfitAfterSetup:    contribution.Sub(setupCosts),
		UnfulfilledCount:       decimal.NewFromInt(unfulfilled),
		MissingLabelCostCount:  decimal.NewFromInt(missing),
	}
}
