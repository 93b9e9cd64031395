// Package reconcile merges freshly fetched line records with override records
// into the rows of the merged orders view.
package reconcile

import (
	"context"

	"github.com/aryanmotgi/Arcus-Sheets/internal/orders"
	"github.com/aryanmotgi/Arcus-Sheets/internal/overrides"
	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/logger"
	"github.com/shopspring/decimal"
)

// Row is one merged view row.
type Row struct {
	orders.LineRecord
	LabelCode         string
	ShippingLabelCost decimal.NullDecimal
	Notes             string
	// Overridden is set when an override record was applied.
	Overridden bool
	// ChargesShipping marks the row that carries the order's shipping label
	// cost in Profit. Only the first line of an order does.
	ChargesShipping bool
	Profit          decimal.Decimal
}

// Warning is a row that was kept but flagged.
type Warning struct {
	Index       int            `json:"index"`
	OrderID     string         `json:"order_id,omitempty"`
	OrderNumber string         `json:"order_number,omitempty"`
	Code        pkgerrors.Code `json:"code"`
	Reason      string         `json:"reason"`
}

// Result is the outcome of one reconciliation.
type Result struct {
	Rows     []Row
	Warnings []Warning
	// Applied counts rows that received override values.
	Applied int
	// Preserved counts distinct orders whose override survived the merge.
	Preserved int
}

const (
	reasonEmptyOrderID    = "order id is empty, overrides not applied"
	reasonMatchedByNumber = "override matched by order number only"
	reasonDuplicate       = "duplicate override for order, newest kept"
)

// Engine produces merged rows. It holds no state between calls.
type Engine struct {
	logg *logger.Logger
}

func NewEngine(logg *logger.Logger) *Engine {
	return &Engine{logg: logg}
}

// Reconcile merges raw with overrides. Rows are emitted in the order of raw
// and the result depends only on its inputs.
func (e *Engine) Reconcile(ctx context.Context, raw []orders.LineRecord, records []overrides.Record) Result {
	var res Result
	byID, byNumber, dups := indexOverrides(records)
	for _, d := range dups {
		res.Warnings = append(res.Warnings, Warning{Index: -1, OrderID: d.OrderID, OrderNumber: d.OrderNumber, Code: pkgerrors.CodeConflict, Reason: reasonDuplicate})
	}

	charged := map[string]bool{}
	preserved := map[string]bool{}
	res.Rows = make([]Row, 0, len(raw))
	for i, rec := range raw {
		row := Row{LineRecord: rec, Notes: rec.OrderNote}

		if rec.OrderID == "" {
			res.Warnings = append(res.Warnings, Warning{Index: i, OrderNumber: rec.OrderNumber, Code: pkgerrors.CodeKeyResolutionMiss, Reason: reasonEmptyOrderID})
			row.Profit = profit(row)
			res.Rows = append(res.Rows, row)
			continue
		}

		ov, ok := byID[rec.OrderID]
		if !ok && rec.OrderNumber != "" {
			if weak, found := byNumber[rec.OrderNumber]; found {
				ov, ok = weak, true
				res.Warnings = append(res.Warnings, Warning{Index: i, OrderID: rec.OrderID, OrderNumber: rec.OrderNumber, Code: pkgerrors.CodeKeyResolutionMiss, Reason: reasonMatchedByNumber})
			}
		}
		if ok {
			overlay(&row, ov)
			res.Applied++
			preserved[rec.OrderID] = true
		}
		if !charged[rec.OrderID] {
			charged[rec.OrderID] = true
			row.ChargesShipping = true
		}
		row.Profit = profit(row)
		res.Rows = append(res.Rows, row)
	}
	res.Preserved = len(preserved)

	if e.logg != nil {
		for _, w := range res.Warnings {
			logCtx := e.logg.WithFields(e.logg.WithOrder(ctx, w.OrderID, w.OrderNumber), map[string]any{
				"index": w.Index,
				"code":  string(w.Code),
			})
			e.logg.Warn(logCtx, w.Reason)
		}
	}
	return res
}

// overlay copies override fields onto row. Empty override fields keep the
// synced value.
func overlay(row *Row, ov overrides.Record) {
	row.Overridden = true
	if ov.LabelCode != "" {
		row.LabelCode = ov.LabelCode
	}
	if ov.ShippingLabelCost.Valid {
		row.ShippingLabelCost = ov.ShippingLabelCost
	}
	if ov.Notes != "" {
		row.Notes = ov.Notes
	}
}

// profit is revenue - cogs - the shipping label cost on the charging row.
func profit(row Row) decimal.Decimal {
	p := row.Revenue().Sub(row.COGS())
	if row.ChargesShipping && row.ShippingLabelCost.Valid {
		p = p.Sub(row.ShippingLabelCost.Decimal)
	}
	return p
}

func indexOverrides(records []overrides.Record) (map[string]overrides.Record, map[string]overrides.Record, []overrides.Record) {
	kept, dropped := overrides.Dedupe(records)
	byID := make(map[string]overrides.Record, len(kept))
	byNumber := map[string]overrides.Record{}
	for _, r := range kept {
		if r.Weak() {
			byNumber[r.OrderNumber] = r
			continue
		}
		byID[r.OrderID] = r
	}
	return byID, byNumber, dropped
}
