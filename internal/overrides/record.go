// Package overrides persists the hand-entered fields of an order (label code,
// shipping label cost, notes) so they survive every re-sync.
package overrides

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultUpdatedBy tags edits made through the ops surface.
const DefaultUpdatedBy = "ops_agent"

// SyncUpdatedBy tags edits made by the sync itself.
const SyncUpdatedBy = "sync"

// Record is the manual state of one order. At most one record exists per
// OrderID; a record with an empty OrderID is a weak reference keyed by
// OrderNumber until the sync can resolve it.
type Record struct {
	OrderID           string              `json:"order_id"`
	OrderNumber       string              `json:"order_number"`
	LabelCode         string              `json:"label_code"`
	ShippingLabelCost decimal.NullDecimal `json:"shipping_label_cost"`
	Notes             string              `json:"notes"`
	UpdatedAt         time.Time           `json:"updated_at"`
	UpdatedBy         string              `json:"updated_by"`
}

// Weak reports whether the record is only known by order number.
func (r Record) Weak() bool {
	return strings.TrimSpace(r.OrderID) == ""
}

// HasShippingLabelCost reports whether a cost has been entered.
func (r Record) HasShippingLabelCost() bool {
	return r.ShippingLabelCost.Valid
}

// sameFields compares everything but the audit columns.
func (r Record) sameFields(o Record) bool {
	if r.OrderID != o.OrderID || r.OrderNumber != o.OrderNumber || r.LabelCode != o.LabelCode || r.Notes != o.Notes {
		return false
	}
	if r.ShippingLabelCost.Valid != o.ShippingLabelCost.Valid {
		return false
	}
	return !r.ShippingLabelCost.Valid || r.ShippingLabelCost.Decimal.Equal(o.ShippingLabelCost.Decimal)
}

// Patch lists the fields an upsert changes. Nil fields are left untouched.
type Patch struct {
	LabelCode              *string
	ShippingLabelCost      *decimal.Decimal
	ClearShippingLabelCost bool
	Notes                  *string
	// AppendNotes joins Notes onto the existing notes with a newline instead of
	// replacing them.
	AppendNotes bool
	UpdatedBy   string
}

// Empty reports whether the patch changes no manual field.
func (p Patch) Empty() bool {
	return p.LabelCode == nil && p.ShippingLabelCost == nil && !p.ClearShippingLabelCost && p.Notes == nil
}

// apply returns existing with the patch and identity applied.
func (p Patch) apply(existing Record, orderID, orderNumber string, now time.Time) Record {
	out := existing
	if orderID != "" {
		out.OrderID = orderID
	}
	if orderNumber != "" {
		out.OrderNumber = orderNumber
	}
	if p.LabelCode != nil {
		out.LabelCode = strings.TrimSpace(*p.LabelCode)
	}
	switch {
	case p.ClearShippingLabelCost:
		out.ShippingLabelCost = decimal.NullDecimal{}
	case p.ShippingLabelCost != nil:
		out.ShippingLabelCost = decimal.NewNullDecimal(p.ShippingLabelCost.Round(2))
	}
	if p.Notes != nil {
		note := strings.TrimSpace(*p.Notes)
		switch {
		case !p.AppendNotes:
			out.Notes = note
		case note == "":
		case out.Notes == "":
			out.Notes = note
		case !strings.HasSuffix(out.Notes, note):
			out.Notes = out.Notes + "\n" + note
		}
	}
	out.UpdatedAt = now.UTC().Truncate(time.Second)
	out.UpdatedBy = p.UpdatedBy
	if out.UpdatedBy == "" {
		out.UpdatedBy = DefaultUpdatedBy
	}
	return out
}

// PatchFrom builds the patch that reproduces r's manual fields.
func PatchFrom(r Record) Patch {
	label, notes := r.LabelCode, r.Notes
	p := Patch{LabelCode: &label, Notes: &notes, UpdatedBy: r.UpdatedBy}
	if r.ShippingLabelCost.Valid {
		cost := r.ShippingLabelCost.Decimal
		p.ShippingLabelCost = &cost
	} else {
		p.ClearShippingLabelCost = true
	}
	return p
}

// match finds the record an upsert for (orderID, orderNumber) should update:
// by order id first, then by order number. With an order id in hand the
// number fallback only takes weak records or records with the same id.
func match(records []Record, orderID, orderNumber string) int {
	if orderID != "" {
		for i, r := range records {
			if r.OrderID == orderID {
				return i
			}
		}
	}
	if orderNumber != "" {
		for i, r := range records {
			if r.OrderNumber == orderNumber && (orderID == "" || r.Weak() || r.OrderID == orderID) {
				return i
			}
		}
	}
	return -1
}

// Dedupe keeps one record per order id (or per order number for weak
// records), preferring the most recently updated. Dropped records are
// returned so callers can report them.
func Dedupe(records []Record) (kept, dropped []Record) {
	pos := map[string]int{}
	for _, r := range records {
		key := dedupeKey(r)
		if key == "" {
			continue
		}
		i, seen := pos[key]
		if !seen {
			pos[key] = len(kept)
			kept = append(kept, r)
			continue
		}
		if r.UpdatedAt.After(kept[i].UpdatedAt) {
			dropped = append(dropped, kept[i])
			kept[i] = r
		} else {
			dropped = append(dropped, r)
		}
	}
	return kept, dropped
}

func dedupeKey(r Record) string {
	if !r.Weak() {
		return "id:" + r.OrderID
	}
	if r.OrderNumber != "" {
		return "number:" + r.OrderNumber
	}
	return ""
}
