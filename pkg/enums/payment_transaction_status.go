package enums

import "fmt"

// PaymentTransactionStatus tracks one currency leg (fiat or coin) of a purchase.
type PaymentTransactionStatus string

const (
	PaymentTransactionStatusCreated   PaymentTransactionStatus = "created"
	PaymentTransactionStatusInTransit PaymentTransactionStatus = "in_transit"
	PaymentTransactionStatusCompleted PaymentTransactionStatus = "completed"
	PaymentTransactionStatusFailed    PaymentTransactionStatus = "failed"
)

var validPaymentTransactionStatuses = []PaymentTransactionStatus{
	PaymentTransactionStatusCreated,
	PaymentTransactionStatusInTransit,
	PaymentTransactionStatusCompleted,
	PaymentTransactionStatusFailed,
}

// String implements fmt.Stringer.
func (s PaymentTransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PaymentTransactionStatus.
func (s PaymentTransactionStatus) IsValid() bool {
	for _, candidate := range validPaymentTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsSettled reports whether the leg has been paid by its backend.
func (s PaymentTransactionStatus) IsSettled() bool {
	return s == PaymentTransactionStatusInTransit || s == PaymentTransactionStatusCompleted
}

// ParsePaymentTransactionStatus converts raw input into a PaymentTransactionStatus.
func ParsePaymentTransactionStatus(value string) (PaymentTransactionStatus, error) {
	for _, candidate := range validPaymentTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment transaction status %q", value)
}
