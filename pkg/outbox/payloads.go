package outbox

import "github.com/google/uuid"

// OrderGroupSettled is emitted once per settled checkout.
type OrderGroupSettled struct {
	OrderGroupID    int64     `json:"orderGroupId"`
	UserID          uuid.UUID `json:"userId"`
	PaymentIntentID string    `json:"paymentIntentId"`
	OrderIDs        []int64   `json:"orderIds"`
	OrderCodes      []string  `json:"orderCodes"`
	TotalAmount     int64     `json:"totalAmount"`
	UsedCoins       int64     `json:"usedCoins"`
	EarnedCoins     int64     `json:"earnedCoins"`
}

// PaymentLegFailed is emitted when the gateway reports a failed fiat charge.
type PaymentLegFailed struct {
	PaymentTransactionID int64  `json:"paymentTransactionId"`
	PaymentIntentID      string `json:"paymentIntentId"`
	Reason               string `json:"reason,omitempty"`
}

// PayoutStatusChanged is emitted on gateway payout transitions.
type PayoutStatusChanged struct {
	PayoutID int64     `json:"payoutId"`
	ShopID   uuid.UUID `json:"shopId"`
	Status   string    `json:"status"`
}

// InventoryReleased lists units whose locks were swept or cancelled.
type InventoryReleased struct {
	Scope    string      `json:"scope"`
	Reason   string      `json:"reason"`
	UnitIDs  []uuid.UUID `json:"unitIds"`
	Released int64       `json:"released"`
}
