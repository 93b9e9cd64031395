// Package orders turns commerce platform orders into the flat per-line records
// the sync projects into the destination.
package orders

import (
	"time"

	"github.com/aryanmotgi/Arcus-Sheets/pkg/enums"
	"github.com/shopspring/decimal"
)

// LineRecord is one purchased item on one order.
type LineRecord struct {
	OrderID           string
	OrderNumber       string
	CreatedAt         time.Time
	CustomerName      string
	ProductName       string
	VariantLabel      string
	SKU               string
	Quantity          int
	UnitPrice         decimal.Decimal
	UnitCost          decimal.Decimal
	FulfillmentStatus enums.FulfillmentStatus
	// OrderNote is the note the customer or staff left on the source order.
	OrderNote string
}

// Revenue is quantity * unit_price.
func (r LineRecord) Revenue() decimal.Decimal {
	return r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// COGS is quantity * unit_cost.
func (r LineRecord) COGS() decimal.Decimal {
	return r.UnitCost.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// SkipReason explains why an input did not produce a line record.
type SkipReason string

const (
	SkipNoLineItems      SkipReason = "order has no line items"
	SkipNonPositiveQty   SkipReason = "line item quantity is not positive"
	SkipNegativePrice    SkipReason = "line item price is negative"
	SkipUndecodable      SkipReason = "order record could not be decoded"
	SkipMalformedSnapRow SkipReason = "snapshot row could not be parsed"
)

// Skip records an input that was dropped and why.
type Skip struct {
	OrderID     string     `json:"order_id,omitempty"`
	OrderNumber string     `json:"order_number,omitempty"`
	Line        int        `json:"line,omitempty"`
	Reason      SkipReason `json:"reason"`
	Detail      string     `json:"detail,omitempty"`
}
