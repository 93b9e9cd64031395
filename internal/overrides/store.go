package overrides

import (
	"context"
	"errors"

	pkgerrors "github.com/aryanmotgi/Arcus-Sheets/pkg/errors"
)

// Store is the persistence contract for override records.
type Store interface {
	// Get looks up by order id when given, falling back to order number.
	Get(ctx context.Context, orderID, orderNumber string) (Record, bool, error)
	// Upsert applies patch to the record located by the same two-tier lookup,
	// appending a new record when none matches.
	Upsert(ctx context.Context, orderID, orderNumber string, patch Patch) (Record, error)
	// ListAll returns one record per order.
	ListAll(ctx context.Context) ([]Record, error)
	// Retire removes every weak record carrying orderNumber. Records with an
	// order id are never touched.
	Retire(ctx context.Context, orderNumber string) (int, error)
}

var errNegativeCost = errors.New("shipping label cost must not be negative")

func errMissingKey() error {
	return pkgerrors.New(pkgerrors.CodeValidation, "order_id or order_number is required")
}

func lookup(records []Record, orderID, orderNumber string) (Record, bool) {
	if i := match(records, orderID, orderNumber); i >= 0 {
		return records[i], true
	}
	return Record{}, false
}
