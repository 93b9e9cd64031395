package overrides

import (
	"context"
	"reflect"
	"strings"

	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
	"github.com/aryanmotgi/Arcus-Sheets/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Resolver upgrades weak order references using the latest raw snapshot.
type Resolver interface {
	Resolve(ctx context.Context, orderNumber string) (string, bool)
	NumberFor(ctx context.Context, orderID string) (string, bool)
}

// SetRequest is a manual edit of one order's overrides.
type SetRequest struct {
	OrderID                string           `json:"order_id" validate:"required_without=OrderNumber,max=64"`
	OrderNumber            string           `json:"order_number" validate:"required_without=OrderID,max=64"`
	LabelCode              *string          `json:"label_code,omitempty" validate:"omitempty,max=128"`
	ShippingLabelCost      *decimal.Decimal `json:"shipping_label_cost,omitempty"`
	ClearShippingLabelCost bool             `json:"clear_shipping_label_cost,omitempty"`
	Notes                  *string          `json:"notes,omitempty" validate:"omitempty,max=5000"`
	AppendNotes            bool             `json:"append_notes,omitempty"`
	UpdatedBy              string           `json:"updated_by,omitempty" validate:"max=64"`
}

// UpgradeResult reports what a weak-reference upgrade pass did.
type UpgradeResult struct {
	Upgraded   []Record
	Unresolved []Record
	// Shadowed holds the strong records that absorbed a weak record for the
	// same order. The weak records are retired.
	Shadowed []Record
}

// Service is the only writer of override records. Every read-then-upsert runs
// under a per-order lock.
type Service struct {
	store    Store
	resolver Resolver
	locker   KeyLocker
	logg     *logger.Logger
	validate *validator.Validate
}

func NewService(store Store, resolver Resolver, locker KeyLocker, logg *logger.Logger) *Service {
	if locker == nil {
		locker = NewMutexLocker()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return &Service{store: store, resolver: resolver, locker: locker, logg: logg, validate: v}
}

// Store exposes the underlying store for read-only snapshotting.
func (s *Service) Store() Store {
	return s.store
}

// Get returns the override of an order. A lookup by order id that misses is
// retried by the order number the snapshot maps it to, which finds records
// written before the id was known.
func (s *Service) Get(ctx context.Context, orderID, orderNumber string) (Record, bool, error) {
	orderID, orderNumber = normalizeKey(orderID, orderNumber)
	if orderID == "" && orderNumber == "" {
		return Record{}, false, errMissingKey()
	}
	if orderID == "" && s.resolver != nil {
		if id, ok := s.resolver.Resolve(ctx, orderNumber); ok {
			orderID = id
		}
	}
	rec, ok, err := s.store.Get(ctx, orderID, orderNumber)
	if err != nil || ok {
		return rec, ok, err
	}
	if orderNumber == "" && s.resolver != nil {
		if number, found := s.resolver.NumberFor(ctx, orderID); found {
			return s.store.Get(ctx, orderID, number)
		}
	}
	return Record{}, false, nil
}

// Set validates and applies a manual edit.
func (s *Service) Set(ctx context.Context, req SetRequest) (Record, error) {
	if err := s.validate.Struct(req); err != nil {
		return Record{}, validationError(err)
	}
	if req.ShippingLabelCost != nil && req.ShippingLabelCost.IsNegative() {
		return Record{}, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"shipping_label_cost": "must not be negative"})
	}
	if req.ShippingLabelCost != nil && req.ClearShippingLabelCost {
		return Record{}, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"clear_shipping_label_cost": "conflicts with shipping_label_cost"})
	}

	patch := Patch{
		LabelCode:              req.LabelCode,
		ShippingLabelCost:      req.ShippingLabelCost,
		ClearShippingLabelCost: req.ClearShippingLabelCost,
		Notes:                  req.Notes,
		AppendNotes:            req.AppendNotes,
		UpdatedBy:              strings.TrimSpace(req.UpdatedBy),
	}
	if patch.UpdatedBy == "" {
		patch.UpdatedBy = DefaultUpdatedBy
	}
	return s.Upsert(ctx, req.OrderID, req.OrderNumber, patch)
}

// Upsert resolves the order identity as far as the snapshot allows and applies
// patch inside the order's critical section.
func (s *Service) Upsert(ctx context.Context, orderID, orderNumber string, patch Patch) (Record, error) {
	orderID, orderNumber = normalizeKey(orderID, orderNumber)
	if orderID == "" && orderNumber == "" {
		return Record{}, errMissingKey()
	}
	if s.resolver != nil {
		if orderID == "" {
			if id, ok := s.resolver.Resolve(ctx, orderNumber); ok {
				orderID = id
			}
		}
		if orderNumber == "" {
			if number, ok := s.resolver.NumberFor(ctx, orderID); ok {
				orderNumber = number
			}
		}
	}

	unlock, err := s.locker.Lock(ctx, LockKey(orderID, orderNumber))
	if err != nil {
		return Record{}, err
	}
	defer unlock()

	rec, err := s.store.Upsert(ctx, orderID, orderNumber, patch)
	if err != nil {
		return Record{}, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrder(ctx, rec.OrderID, rec.OrderNumber), map[string]any{
			"updated_by": rec.UpdatedBy,
			"weak":       rec.Weak(),
		})
		s.logg.Info(logCtx, "override saved")
	}
	return rec, nil
}

// UpgradeWeak rewrites every weak record the resolver can map to an order id.
func (s *Service) UpgradeWeak(ctx context.Context) (UpgradeResult, error) {
	var result UpgradeResult
	if s.resolver == nil {
		return result, nil
	}
	records, err := s.store.ListAll(ctx)
	if err != nil {
		return result, err
	}
	for _, rec := range records {
		if !rec.Weak() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, pkgerrors.Wrap(pkgerrors.CodeCanceled, err, "override upgrade canceled")
		}
		id, ok := s.resolver.Resolve(ctx, rec.OrderNumber)
		if !ok {
			result.Unresolved = append(result.Unresolved, rec)
			continue
		}
		if strong, found, err := s.store.Get(ctx, id, ""); err != nil {
			return result, err
		} else if found && !strong.Weak() {
			merged, err := s.fold(ctx, rec, strong)
			if err != nil {
				return result, err
			}
			result.Shadowed = append(result.Shadowed, merged)
			continue
		}
		upgraded, err := s.Upsert(ctx, id, rec.OrderNumber, Patch{UpdatedBy: SyncUpdatedBy})
		if err != nil {
			return result, err
		}
		result.Upgraded = append(result.Upgraded, upgraded)
	}
	return result, nil
}

// fold copies the fields a weak record has and its strong counterpart lacks,
// then retires the weak record so the order is counted once.
func (s *Service) fold(ctx context.Context, weak, strong Record) (Record, error) {
	unlock, err := s.locker.Lock(ctx, LockKey(strong.OrderID, weak.OrderNumber))
	if err != nil {
		return Record{}, err
	}
	defer unlock()

	patch := foldPatch(weak, strong)
	out := strong
	if !patch.Empty() {
		out, err = s.store.Upsert(ctx, strong.OrderID, weak.OrderNumber, patch)
		if err != nil {
			return Record{}, err
		}
	}
	if _, err := s.store.Retire(ctx, weak.OrderNumber); err != nil {
		return Record{}, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrder(ctx, out.OrderID, weak.OrderNumber), "weak override folded into order record")
	}
	return out, nil
}

// foldPatch fills the strong record's blanks from weak. Notes are appended.
func foldPatch(weak, strong Record) Patch {
	p := Patch{UpdatedBy: SyncUpdatedBy}
	if strong.LabelCode == "" && weak.LabelCode != "" {
		label := weak.LabelCode
		p.LabelCode = &label
	}
	if !strong.ShippingLabelCost.Valid && weak.ShippingLabelCost.Valid {
		cost := weak.ShippingLabelCost.Decimal
		p.ShippingLabelCost = &cost
	}
	if weak.Notes != "" && !strings.Contains(strong.Notes, weak.Notes) {
		notes := weak.Notes
		p.Notes = &notes
		p.AppendNotes = true
	}
	return p
}

func normalizeKey(orderID, orderNumber string) (string, string) {
	return strings.TrimSpace(orderID), strings.TrimPrefix(strings.TrimSpace(orderNumber), "#")
}

func validationError(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := map[string]string{}
	for _, fe := range errs {
		switch fe.Tag() {
		case "required_without":
			details[fe.Field()] = "is required when " + strings.ToLower(fe.Param()) + " is empty"
		case "max":
			details[fe.Field()] = "must be at most " + fe.Param() + " characters"
		default:
			details[fe.Field()] = "is invalid"
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}
