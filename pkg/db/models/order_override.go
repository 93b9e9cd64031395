package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderOverride stores the manual fields of an order when overrides are kept in
// Postgres instead of the spreadsheet.
type OrderOverride struct {
	ID                uuid.UUID           `gorm:"type:uuid;primaryKey"`
	OrderID           string              `gorm:"type:text;not null;default:''"`
	OrderNumber       string              `gorm:"type:text;not null;default:''"`
	LabelCode         string              `gorm:"type:text;not null;default:''"`
	ShippingLabelCost decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	Notes             string              `gorm:"type:text;not null;default:''"`
	UpdatedBy         string              `gorm:"type:text;not null;default:''"`
	CreatedAt         time.Time           `gorm:"not null;autoCreateTime:false"`
	UpdatedAt         time.Time           `gorm:"not null;autoUpdateTime:false"`
}

// TableName pins the table name.
func (OrderOverride) TableName() string {
	return "order_overrides"
}
