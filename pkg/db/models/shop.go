package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Shop is a seller. Shipping settings are read once per checkout group.
type Shop struct {
	ID                            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OwnerUserID                   uuid.UUID           `gorm:"column:owner_user_id;type:uuid;not null;index"`
	Name                          string              `gorm:"column:name;not null"`
	Email                         string              `gorm:"column:email"`
	StripeAccountID               *string             `gorm:"column:stripe_account_id"`
	PlatformPercents              decimal.NullDecimal `gorm:"column:platform_percents;type:numeric(5,2)"`
	ShippingFeeEnabled            bool                `gorm:"column:shipping_fee_enabled;not null"`
	DomesticFreeShippingThreshold *int64              `gorm:"column:domestic_free_shipping_threshold"`
	OverseasFreeShippingThreshold *int64              `gorm:"column:overseas_free_shipping_threshold"`
	CreatedAt                     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Shop) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}
