package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrderGroup         OutboxAggregateType = "order_group"
	AggregatePaymentTransaction OutboxAggregateType = "payment_transaction"
	AggregatePayout             OutboxAggregateType = "payout"
	AggregateInventory          OutboxAggregateType = "inventory"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrderGroup,
	AggregatePaymentTransaction,
	AggregatePayout,
	AggregateInventory,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType names a domain event.
type OutboxEventType string

const (
	EventOrderGroupSettled   OutboxEventType = "order_group_settled"
	EventPaymentLegFailed    OutboxEventType = "payment_leg_failed"
	EventPayoutStatusChanged OutboxEventType = "payout_status_changed"
	// EventInventoryReleased signals that swept or cancelled locks returned
	// capacity. Delivery is at-least-once.
	EventInventoryReleased OutboxEventType = "inventory_released"
)

var validEventTypes = []OutboxEventType{
	EventOrderGroupSettled,
	EventPaymentLegFailed,
	EventPayoutStatusChanged,
	EventInventoryReleased,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
