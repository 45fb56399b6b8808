package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
)

// AddressSnapshot is the shipping destination copied onto an order at creation.
type AddressSnapshot struct {
	RecipientName string `gorm:"column:recipient_name"`
	PostalCode    string `gorm:"column:postal_code"`
	CountryCode   string `gorm:"column:country_code"`
	Prefecture    string `gorm:"column:prefecture"`
	City          string `gorm:"column:city"`
	Line1         string `gorm:"column:line1"`
	Line2         string `gorm:"column:line2"`
	Phone         string `gorm:"column:phone"`
}

// Order is the per-shop slice of an OrderGroup.
type Order struct {
	ID              int64             `gorm:"column:id;primaryKey;autoIncrement"`
	OrderGroupID    int64             `gorm:"column:order_group_id;not null;index"`
	UserID          uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	ShopID          uuid.UUID         `gorm:"column:shop_id;type:uuid;not null;index"`
	Code            *string           `gorm:"column:code;uniqueIndex"`
	Status          enums.OrderStatus `gorm:"column:status;type:text;not null;default:'created'"`
	PaymentIntentID *string           `gorm:"column:payment_intent_id;index"`
	Amount          int64             `gorm:"column:amount;not null"`
	ShippingFee     int64             `gorm:"column:shipping_fee;not null;default:0"`
	TotalAmount     int64             `gorm:"column:total_amount;not null"`
	PlatformFee     int64             `gorm:"column:platform_fee;not null;default:0"`
	StripeFee       int64             `gorm:"column:stripe_fee;not null;default:0"`
	Shipping        AddressSnapshot   `gorm:"embedded;embeddedPrefix:shipping_"`
	Items           []OrderDetailItem `gorm:"foreignKey:OrderID"`
	OrderedAt       time.Time         `gorm:"column:ordered_at;not null"`
	CompletedAt     *time.Time        `gorm:"column:completed_at"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// ProductSnapshot freezes catalog data on the line item so later catalog
// edits do not change historical orders.
type ProductSnapshot struct {
	Title           string `json:"title"`
	ImageURL        string `json:"imageUrl,omitempty"`
	ShopName        string `json:"shopName"`
	UnitPrice       int64  `json:"unitPrice"`
	Color           string `json:"color,omitempty"`
	CustomParameter string `json:"customParameter,omitempty"`
	TicketTitle     string `json:"ticketTitle,omitempty"`
}

type OrderDetailItem struct {
	ID                       int64           `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID                  int64           `gorm:"column:order_id;not null;index"`
	ProductID                *uuid.UUID      `gorm:"column:product_id;type:uuid"`
	ParameterSetID           *uuid.UUID      `gorm:"column:parameter_set_id;type:uuid"`
	SessionTicketID          *uuid.UUID      `gorm:"column:session_ticket_id;type:uuid"`
	Color                    string          `gorm:"column:color"`
	CustomParameter          string          `gorm:"column:custom_parameter"`
	Quantity                 int64           `gorm:"column:quantity;not null"`
	UnitPrice                int64           `gorm:"column:unit_price;not null"`
	ShippingFee              int64           `gorm:"column:shipping_fee;not null;default:0"`
	Amount                   int64           `gorm:"column:amount;not null"`
	SnapshotProductMaterials ProductSnapshot `gorm:"column:snapshot_product_materials;type:jsonb;serializer:json"`
	CreatedAt                time.Time       `gorm:"column:created_at;autoCreateTime"`
}
