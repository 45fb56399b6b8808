package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
)

// OrderGroup is the payment-intent scoped envelope over per-shop orders.
type OrderGroup struct {
	ID                   int64                  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID               uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Code                 *string                `gorm:"column:code"`
	ItemType             enums.ItemType         `gorm:"column:item_type;type:text;not null"`
	Status               enums.OrderGroupStatus `gorm:"column:status;type:text;not null;default:'created'"`
	PaymentIntentID      *string                `gorm:"column:payment_intent_id;index"`
	PaymentTransactionID int64                  `gorm:"column:payment_transaction_id;not null"`
	UsedCoins            int64                  `gorm:"column:used_coins;not null;default:0"`
	FiatAmount           int64                  `gorm:"column:fiat_amount;not null;default:0"`
	EarnedCoins          int64                  `gorm:"column:earned_coins;not null;default:0"`
	Amount               int64                  `gorm:"column:amount;not null"`
	ShippingFee          int64                  `gorm:"column:shipping_fee;not null;default:0"`
	TotalAmount          int64                  `gorm:"column:total_amount;not null"`
	Orders               []Order                `gorm:"foreignKey:OrderGroupID"`
	CompletedAt          *time.Time             `gorm:"column:completed_at"`
	CreatedAt            time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
