package enums

import (
	"fmt"
	"strings"
)

// FulfillmentStatus is the normalized fulfillment state of an order line.
type FulfillmentStatus string

const (
	FulfillmentStatusUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentStatusPartial     FulfillmentStatus = "partial"
	FulfillmentStatusFulfilled   FulfillmentStatus = "fulfilled"
	FulfillmentStatusUnknown     FulfillmentStatus = "unknown"
)

var validFulfillmentStatuses = []FulfillmentStatus{
	FulfillmentStatusUnfulfilled,
	FulfillmentStatusPartial,
	FulfillmentStatusFulfilled,
	FulfillmentStatusUnknown,
}

// String implements fmt.Stringer.
func (s FulfillmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known fulfillment status.
func (s FulfillmentStatus) IsValid() bool {
	for _, candidate := range validFulfillmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Open reports whether the line still needs fulfillment work.
func (s FulfillmentStatus) Open() bool {
	return s != FulfillmentStatusFulfilled
}

// ParseFulfillmentStatus converts the raw string to FulfillmentStatus.
func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	for _, candidate := range validFulfillmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment status %q", value)
}

// NormalizeFulfillmentStatus maps the commerce platform's raw value: null or
// empty is unfulfilled, anything unrecognized is unknown.
func NormalizeFulfillmentStatus(raw *string) FulfillmentStatus {
	if raw == nil {
		return FulfillmentStatusUnfulfilled
	}
	switch strings.ToLower(strings.TrimSpace(*raw)) {
	case "", "null", "unfulfilled":
		return FulfillmentStatusUnfulfilled
	case "partial":
		return FulfillmentStatusPartial
	case "fulfilled":
		return FulfillmentStatusFulfilled
	default:
		return FulfillmentStatusUnknown
	}
}
