package orders

import (
	"strings"

	"github.com/aryanmotgi/Arcus-Sheets/pkg/enums"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/shopify"
)

// Flattened is the outcome of turning a fetched order batch into line records.
type Flattened struct {
	Records []LineRecord
	Skipped []Skip
	Orders  int
}

// Flatten emits one record per line item in source order. Orders without
// line items and lines with a non-positive quantity or negative price are
// skipped with a reason.
func Flatten(batch shopify.OrderBatch, catalog *CostCatalog) Flattened {
	out := Flattened{}
	for _, failure := range batch.Undecodable {
		detail := ""
		if failure.Err != nil {
			detail = failure.Err.Error()
		}
		out.Skipped = append(out.Skipped, Skip{Line: failure.Index, Reason: SkipUndecodable, Detail: detail})
	}

	for _, order := range batch.Orders {
		id := strings.TrimSpace(order.ID.String())
		number := order.Number()
		if len(order.LineItems) == 0 {
			out.Skipped = append(out.Skipped, Skip{OrderID: id, OrderNumber: number, Reason: SkipNoLineItems})
			continue
		}
		out.Orders++

		customer := customerName(order)
		status := enums.NormalizeFulfillmentStatus(order.FulfillmentStatus)
		for i, item := range order.LineItems {
			if item.Quantity <= 0 {
				out.Skipped = append(out.Skipped, Skip{OrderID: id, OrderNumber: number, Line: i + 1, Reason: SkipNonPositiveQty})
				continue
			}
			if item.Price.IsNegative() {
				out.Skipped = append(out.Skipped, Skip{OrderID: id, OrderNumber: number, Line: i + 1, Reason: SkipNegativePrice})
				continue
			}
			product := productName(item)
			variant := ""
			if item.VariantTitle != nil {
				variant = strings.TrimSpace(*item.VariantTitle)
			}
			out.Records = append(out.Records, LineRecord{
				OrderID:           id,
				OrderNumber:       number,
				CreatedAt:         order.CreatedAt.UTC(),
				CustomerName:      customer,
				ProductName:       product,
				VariantLabel:      variant,
				SKU:               strings.TrimSpace(item.SKU),
				Quantity:          item.Quantity,
				UnitPrice:         item.Price,
				UnitCost:          catalog.Lookup(item.SKU, product),
				FulfillmentStatus: status,
				OrderNote:         strings.TrimSpace(order.Note),
			})
		}
	}
	return out
}

func customerName(order shopify.Order) string {
	if c := order.Customer; c != nil {
		if full := strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName)); full != "" {
			return full
		}
		if email := strings.TrimSpace(c.Email); email != "" {
			return email
		}
	}
	return strings.TrimSpace(order.Email)
}

func productName(item shopify.LineItem) string {
	if name := strings.TrimSpace(item.Name); name != "" {
		return name
	}
	return strings.TrimSpace(item.Title)
}
