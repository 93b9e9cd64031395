package orders

import (
	"strconv"
	"strings"
	"time"

	"github.com/aryanmotgi/Arcus-Sheets/internal/destination"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/enums"
	"github.com/shopspring/decimal"
)

// RawColumns is the header of the raw snapshot tab.
var RawColumns = []string{
	"order_id",
	"order_number",
	"created_at",
	"customer_name",
	"product_name",
	"variant_label",
	"sku",
	"quantity",
	"unit_price",
	"unit_cost",
	"fulfillment_status",
	"order_note",
}

// RawAliases lets the snapshot reader accept the display headers older
// versions of the tab used.
var RawAliases = map[string]string{
	"order":    "order_number",
	"order_no": "order_number",
	"date":     "created_at",
	"customer": "customer_name",
	"product":  "product_name",
	"variant":  "variant_label",
	"size":     "variant_label",
	"qty":      "quantity",
	"price":    "unit_price",
	"status":   "fulfillment_status",
	"cost":     "unit_cost",
}

// RawSchema returns the snapshot schema bound to tab.
func RawSchema(tab string) destination.Schema {
	return destination.Schema{Tab: tab, Columns: RawColumns, Aliases: RawAliases}
}

// Cells renders the record in RawColumns order. Money is fixed to two places.
func (r LineRecord) Cells() []string {
	created := ""
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		r.OrderID,
		r.OrderNumber,
		created,
		r.CustomerName,
		r.ProductName,
		r.VariantLabel,
		r.SKU,
		strconv.Itoa(r.Quantity),
		r.UnitPrice.StringFixed(2),
		r.UnitCost.StringFixed(2),
		r.FulfillmentStatus.String(),
		r.OrderNote,
	}
}

// EncodeRaw renders records as snapshot data rows.
func EncodeRaw(records []LineRecord) [][]string {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = r.Cells()
	}
	return rows
}

// DecodeRaw parses a snapshot tab, header row included. Columns are located
// by header name; rows that cannot be parsed are reported as skips.
func DecodeRaw(rows [][]string) ([]LineRecord, []Skip) {
	if len(rows) == 0 {
		return nil, nil
	}
	idx := destination.HeaderIndex(destination.Schema{Columns: RawColumns, Aliases: RawAliases}, rows[0])
	get := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok {
			return ""
		}
		return strings.TrimSpace(destination.Cell(row, i))
	}

	var (
		records []LineRecord
		skipped []Skip
	)
	for n, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		rec := LineRecord{
			OrderID:      get(row, "order_id"),
			OrderNumber:  strings.TrimPrefix(get(row, "order_number"), "#"),
			CustomerName: get(row, "customer_name"),
			ProductName:  get(row, "product_name"),
			VariantLabel: get(row, "variant_label"),
			SKU:          get(row, "sku"),
			OrderNote:    get(row, "order_note"),
		}
		if raw := get(row, "created_at"); raw != "" {
			if ts, err := parseTime(raw); err == nil {
				rec.CreatedAt = ts
			}
		}
		qty, err := strconv.Atoi(get(row, "quantity"))
		if err != nil {
			skipped = append(skipped, Skip{OrderID: rec.OrderID, OrderNumber: rec.OrderNumber, Line: n + 2, Reason: SkipMalformedSnapRow, Detail: "quantity"})
			continue
		}
		rec.Quantity = qty
		if rec.UnitPrice, err = parseMoney(get(row, "unit_price")); err != nil {
			skipped = append(skipped, Skip{OrderID: rec.OrderID, OrderNumber: rec.OrderNumber, Line: n + 2, Reason: SkipMalformedSnapRow, Detail: "unit_price"})
			continue
		}
		if rec.UnitCost, err = parseMoney(get(row, "unit_cost")); err != nil {
			rec.UnitCost = decimal.Zero
		}
		status, err := enums.ParseFulfillmentStatus(strings.ToLower(get(row, "fulfillment_status")))
		if err != nil {
			status = enums.FulfillmentStatusUnknown
		}
		rec.FulfillmentStatus = status
		records = append(records, rec)
	}
	return records, skipped
}

func parseMoney(raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(raw), "$"), ",", "")
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Parse(time.RFC3339, raw)
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
