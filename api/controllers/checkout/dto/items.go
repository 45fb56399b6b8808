package dto

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/vibes-market-backend/internal/cart"
	"github.com/angelmondragon/vibes-market-backend/internal/inventory"
)

// MaxLineItems bounds one checkout request.
const MaxLineItems = 100

// LineItem is one requested product, product variant or session ticket.
type LineItem struct {
	ProductID       *uuid.UUID `json:"productId" validate:"required_without=SessionTicketID,excluded_with=SessionTicketID"`
	ParameterSetID  *uuid.UUID `json:"parameterSetId,omitempty" validate:"excluded_with=SessionTicketID"`
	SessionTicketID *uuid.UUID `json:"sessionTicketId" validate:"required_without=ProductID"`
	Quantity        int64      `json:"quantity" validate:"required,min=1,max=1000"`
}

// ItemsRequest is the body shared by the lock endpoints.
type ItemsRequest struct {
	Items []LineItem `json:"items" validate:"required,min=1,max=100,dive"`
}

// ToCartLines converts validated request lines.
func ToCartLines(items []LineItem) []cart.LineItem {
	out := make([]cart.LineItem, 0, len(items))
	for _, item := range items {
		line := cart.LineItem{ParameterSetID: item.ParameterSetID, Quantity: item.Quantity}
		if item.ProductID != nil {
			line.ProductID = *item.ProductID
		}
		if item.SessionTicketID != nil {
			line.SessionTicketID = *item.SessionTicketID
		}
		out = append(out, line)
	}
	return out
}

// ToInventoryItems converts validated request lines to ledger items.
func ToInventoryItems(items []LineItem) []inventory.Item {
	lines := ToCartLines(items)
	out := make([]inventory.Item, 0, len(lines))
	for _, line := range lines {
		out = append(out, line.InventoryItem())
	}
	return out
}
