package reconcile

import (
	"github.com/aryanmotgi/Arcus-Sheets/internal/destination"
	"github.com/aryanmotgi/Arcus-Sheets/internal/orders"
)

// Columns is the merged view header: the line record fields, revenue, the
// override fields and profit.
var Columns = append(append([]string(nil), orders.RawColumns[:len(orders.RawColumns)-1]...),
	"revenue",
	"label_code",
	"shipping_label_cost",
	"notes",
	"profit",
)

// Schema returns the merged view schema bound to tab.
func Schema(tab string) destination.Schema {
	return destination.Schema{Tab: tab, Columns: Columns, Aliases: orders.RawAliases}
}

// Cells renders the row in Columns order.
func (r Row) Cells() []string {
	line := r.LineRecord.Cells()
	cells := append([]string(nil), line[:len(line)-1]...)
	cost := ""
	if r.ShippingLabelCost.Valid {
		cost = r.ShippingLabelCost.Decimal.StringFixed(2)
	}
	return append(cells,
		r.Revenue().StringFixed(2),
		r.LabelCode,
		cost,
		r.Notes,
		r.Profit.StringFixed(2),
	)
}

// Encode renders rows for a destination write.
func Encode(rows []Row) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = r.Cells()
	}
	return out
}

// Open returns the rows still awaiting fulfillment.
func Open(rows []Row) []Row {
	var out []Row
	for _, r := range rows {
		if r.FulfillmentStatus.Open() {
			out = append(out, r)
		}
	}
	return out
}
