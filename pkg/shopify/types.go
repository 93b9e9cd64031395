package shopify

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order mirrors the subset of the Admin API order resource the sync consumes.
type Order struct {
	ID                json.Number `json:"id"`
	Name              string      `json:"name"`
	OrderNumber       json.Number `json:"order_number"`
	Email             string      `json:"email"`
	Note              string      `json:"note"`
	CreatedAt         time.Time   `json:"created_at"`
	FinancialStatus   string      `json:"financial_status"`
	FulfillmentStatus *string     `json:"fulfillment_status"`
	Customer          *Customer   `json:"customer"`
	LineItems         []LineItem  `json:"line_items"`
}

// Customer is the embedded order customer.
type Customer struct {
	ID        json.Number `json:"id"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Email     string      `json:"email"`
}

// LineItem is one purchased product on an order.
type LineItem struct {
	ID           json.Number     `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Title        string          `json:"title"`
	VariantTitle *string         `json:"variant_title"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
}

// Number returns the human-facing order number without the leading '#'.
func (o Order) Number() string {
	if name := strings.TrimPrefix(strings.TrimSpace(o.Name), "#"); name != "" {
		return name
	}
	if n, err := strconv.ParseInt(o.OrderNumber.String(), 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

// OrderBatch is the decoded result of an orders fetch.
type OrderBatch struct {
	Orders      []Order
	Undecodable []DecodeFailure
}

// DecodeFailure records a raw record that could not be decoded.
type DecodeFailure struct {
	Index int
	Err   error
}
