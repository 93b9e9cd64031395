package overrides

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aryanmotgi/Arcus-Sheets/pkg/db"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/db/models"
	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const uniqueOrderIDIndex = "order_overrides_order_id_key"

// DBStore keeps override records in the order_overrides table.
type DBStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDBStore(conn *gorm.DB) *DBStore {
	return &DBStore{db: conn, now: time.Now}
}

func (s *DBStore) Get(ctx context.Context, orderID, orderNumber string) (Record, bool, error) {
	if orderID == "" && orderNumber == "" {
		return Record{}, false, errMissingKey()
	}
	row, err := s.find(s.db.WithContext(ctx), orderID, orderNumber)
	if err != nil {
		return Record{}, false, err
	}
	if row == nil {
		return Record{}, false, nil
	}
	return fromModel(*row), true, nil
}

func (s *DBStore) ListAll(ctx context.Context) ([]Record, error) {
	var rows []models.OrderOverride
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overrides")
	}
	records := make([]Record, len(rows))
	for i, r := range rows {
		records[i] = fromModel(r)
	}
	kept, _ := Dedupe(records)
	return kept, nil
}

func (s *DBStore) Upsert(ctx context.Context, orderID, orderNumber string, patch Patch) (Record, error) {
	orderID, orderNumber = strings.TrimSpace(orderID), strings.TrimPrefix(strings.TrimSpace(orderNumber), "#")
	if orderID == "" && orderNumber == "" {
		return Record{}, errMissingKey()
	}

	var out Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.find(tx, orderID, orderNumber)
		if err != nil {
			return err
		}
		now := s.now()
		if row == nil {
			out = patch.apply(Record{}, orderID, orderNumber, now)
			m := toModel(out)
			m.ID = uuid.New()
			m.CreatedAt = out.UpdatedAt
			return tx.Create(&m).Error
		}
		out = patch.apply(fromModel(*row), orderID, orderNumber, now)
		m := toModel(out)
		m.ID = row.ID
		m.CreatedAt = row.CreatedAt
		return tx.Save(&m).Error
	})
	if err != nil {
		if db.IsUniqueViolation(err, uniqueOrderIDIndex) {
			return Record{}, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "override for order already exists")
		}
		if typed := pkgerrors.As(err); typed != nil {
			return Record{}, err
		}
		return Record{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert override")
	}
	return out, nil
}

func (s *DBStore) Retire(ctx context.Context, orderNumber string) (int, error) {
	orderNumber = strings.TrimPrefix(strings.TrimSpace(orderNumber), "#")
	if orderNumber == "" {
		return 0, errMissingKey()
	}
	res := s.db.WithContext(ctx).
		Where("order_id = '' AND order_number = ?", orderNumber).
		Delete(&models.OrderOverride{})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "retire weak overrides")
	}
	return int(res.RowsAffected), nil
}

// find applies the two-tier lookup. When an order id is given the number
// fallback only matches rows without an id or carrying the same id.
func (s *DBStore) find(conn *gorm.DB, orderID, orderNumber string) (*models.OrderOverride, error) {
	var row models.OrderOverride
	if orderID != "" {
		err := conn.Where("order_id = ?", orderID).Order("updated_at DESC").First(&row).Error
		if err == nil {
			return &row, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find override by order id")
		}
	}
	if orderNumber == "" {
		return nil, nil
	}
	q := conn.Where("order_number = ?", orderNumber)
	if orderID != "" {
		q = q.Where("(order_id = '' OR order_id = ?)", orderID)
	}
	err := q.Order("updated_at DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find override by order number")
	}
	return &row, nil
}

func fromModel(m models.OrderOverride) Record {
	return Record{
		OrderID:           m.OrderID,
		OrderNumber:       m.OrderNumber,
		LabelCode:         m.LabelCode,
		ShippingLabelCost: m.ShippingLabelCost,
		Notes:             m.Notes,
		UpdatedAt:         m.UpdatedAt.UTC(),
		UpdatedBy:         m.UpdatedBy,
	}
}

func toModel(r Record) models.OrderOverride {
	return models.OrderOverride{
		OrderID:           r.OrderID,
		OrderNumber:       r.OrderNumber,
		LabelCode:         r.LabelCode,
		ShippingLabelCost: r.ShippingLabelCost,
		Notes:             r.Notes,
		UpdatedBy:         r.UpdatedBy,
		UpdatedAt:         r.UpdatedAt,
	}
}
