package enums

import "fmt"

// PayoutStatus tracks a seller withdrawal.
type PayoutStatus string

const (
	PayoutStatusCreated   PayoutStatus = "created"
	PayoutStatusPending   PayoutStatus = "pending"
	PayoutStatusInTransit PayoutStatus = "in_transit"
	PayoutStatusPaid      PayoutStatus = "paid"
	PayoutStatusFailed    PayoutStatus = "failed"
	PayoutStatusCanceled  PayoutStatus = "canceled"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusCreated,
	PayoutStatusPending,
	PayoutStatusInTransit,
	PayoutStatusPaid,
	PayoutStatusFailed,
	PayoutStatusCanceled,
}

// String implements fmt.Stringer.
func (s PayoutStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PayoutStatus.
func (s PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsOpen reports whether a payout in this status blocks scheduling a new one.
func (s PayoutStatus) IsOpen() bool {
	switch s {
	case PayoutStatusCreated, PayoutStatusPending, PayoutStatusInTransit:
		return true
	}
	return false
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}
