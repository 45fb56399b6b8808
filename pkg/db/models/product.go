package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
)

// Product is a sellable unit. A nil Quantity means unlimited stock.
type Product struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ShopID              uuid.UUID           `gorm:"column:shop_id;type:uuid;not null;index"`
	Title               string              `gorm:"column:title;not null"`
	ImageURL            string              `gorm:"column:image_url"`
	Price               int64               `gorm:"column:price;not null"`
	Quantity            *int64              `gorm:"column:quantity"`
	PurchasedCount      int64               `gorm:"column:purchased_count;not null;default:0"`
	ShippingFee         int64               `gorm:"column:shipping_fee;not null;default:0"`
	OverseasShippingFee int64               `gorm:"column:overseas_shipping_fee;not null;default:0"`
	ShippingFeeDisabled bool                `gorm:"column:shipping_fee_disabled;not null;default:false"`
	Status              enums.ProductStatus `gorm:"column:status;type:text;not null;default:'published'"`
	ParameterSets       []ParameterSet      `gorm:"foreignKey:ProductID"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// ParameterSet is a color x custom-parameter variant tracked independently.
type ParameterSet struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID       uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	Color           string    `gorm:"column:color"`
	CustomParameter string    `gorm:"column:custom_parameter"`
	Price           *int64    `gorm:"column:price"`
	Quantity        *int64    `gorm:"column:quantity"`
	PurchasedCount  int64     `gorm:"column:purchased_count;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *ParameterSet) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}
