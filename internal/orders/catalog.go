package orders

import (
	"strings"

	"github.com/aryanmotgi/Arcus-Sheets/internal/destination"
	"github.com/shopspring/decimal"
)

// ProductsSchema is the header of the unit cost tab.
var ProductsSchema = destination.Schema{
	Columns: []string{"sku", "product_name", "unit_cost"},
	Aliases: map[string]string{
		"product":       "product_name",
		"name":          "product_name",
		"cost":          "unit_cost",
		"cost_per_unit": "unit_cost",
	},
}

// CostCatalog resolves the unit cost of a line by SKU, then product name,
// falling back to a default cost per unit.
type CostCatalog struct {
	bySKU    map[string]decimal.Decimal
	byName   map[string]decimal.Decimal
	fallback decimal.Decimal
}

// NewCostCatalog returns an empty catalog answering fallback for everything.
func NewCostCatalog(fallback decimal.Decimal) *CostCatalog {
	return &CostCatalog{
		bySKU:    map[string]decimal.Decimal{},
		byName:   map[string]decimal.Decimal{},
		fallback: fallback,
	}
}

// LoadCostCatalog parses a products tab. Rows without a parseable non-negative
// cost are ignored.
func LoadCostCatalog(rows [][]string, fallback decimal.Decimal) *CostCatalog {
	c := NewCostCatalog(fallback)
	if len(rows) == 0 {
		return c
	}
	idx := destination.HeaderIndex(ProductsSchema, rows[0])
	costCol, ok := idx["unit_cost"]
	if !ok {
		return c
	}
	skuCol, hasSKU := idx["sku"]
	nameCol, hasName := idx["product_name"]
	for _, row := range rows[1:] {
		cost, err := decimal.NewFromString(strings.TrimSpace(strings.TrimPrefix(destination.Cell(row, costCol), "$")))
		if err != nil || cost.IsNegative() {
			continue
		}
		if hasSKU {
			if sku := catalogKey(destination.Cell(row, skuCol)); sku != "" {
				c.bySKU[sku] = cost
			}
		}
		if hasName {
			if name := catalogKey(destination.Cell(row, nameCol)); name != "" {
				c.byName[name] = cost
			}
		}
	}
	return c
}

// Set registers a cost for sku and product name.
func (c *CostCatalog) Set(sku, productName string, cost decimal.Decimal) {
	if k := catalogKey(sku); k != "" {
		c.bySKU[k] = cost
	}
	if k := catalogKey(productName); k != "" {
		c.byName[k] = cost
	}
}

// Lookup returns the unit cost for a line.
func (c *CostCatalog) Lookup(sku, productName string) decimal.Decimal {
	if c == nil {
		return decimal.Zero
	}
	if cost, ok := c.bySKU[catalogKey(sku)]; ok {
		return cost
	}
	if cost, ok := c.byName[catalogKey(productName)]; ok {
		return cost
	}
	return c.fallback
}

// Len returns the number of distinct entries.
func (c *CostCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.bySKU) + len(c.byName)
}

func catalogKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
