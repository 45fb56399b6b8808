package enums

import "fmt"

// OrderGroupStatus tracks the checkout envelope that shares one payment intent.
type OrderGroupStatus string

const (
	OrderGroupStatusCreated   OrderGroupStatus = "created"
	OrderGroupStatusCompleted OrderGroupStatus = "completed"
)

var validOrderGroupStatuses = []OrderGroupStatus{
	OrderGroupStatusCreated,
	OrderGroupStatusCompleted,
}

// String implements fmt.Stringer.
func (s OrderGroupStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderGroupStatus.
func (s OrderGroupStatus) IsValid() bool {
	for _, candidate := range validOrderGroupStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// OrderStatus tracks a single per-shop order.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCanceled  OrderStatus = "canceled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusCompleted,
	OrderStatusCanceled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
