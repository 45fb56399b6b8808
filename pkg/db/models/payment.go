package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
)

// PaymentTransaction is one currency leg of a purchase.
type PaymentTransaction struct {
	ID                 int64                          `gorm:"column:id;primaryKey;autoIncrement"`
	UserID             uuid.UUID                      `gorm:"column:user_id;type:uuid;not null;index"`
	OrderGroupID       *int64                         `gorm:"column:order_group_id;index"`
	Amount             int64                          `gorm:"column:amount;not null"`
	StripeFeePercents  decimal.Decimal                `gorm:"column:stripe_fee_percents;type:numeric(5,2);not null"`
	ApplicationFee     int64                          `gorm:"column:application_fee;not null;default:0"`
	TransferAmount     int64                          `gorm:"column:transfer_amount;not null"`
	IsFiat             bool                           `gorm:"column:is_fiat;not null"`
	Status             enums.PaymentTransactionStatus `gorm:"column:status;type:text;not null;default:'created'"`
	PaymentIntentID    *string                        `gorm:"column:payment_intent_id;index"`
	PaymentServiceTxID *string                        `gorm:"column:payment_service_tx_id"`
	TransferID         *string                        `gorm:"column:transfer_id"`
	TransferRefs       json.RawMessage                `gorm:"column:transfer_refs;type:jsonb"`
	FailureReason      *string                        `gorm:"column:failure_reason"`
	CreatedAt          time.Time                      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                      `gorm:"column:updated_at;autoUpdateTime"`
}

// PaymentTransfer records the net amount moved to a shop for one order and leg.
type PaymentTransfer struct {
	ID                   int64           `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID              int64           `gorm:"column:order_id;not null;uniqueIndex:uq_payment_transfers_order_tx"`
	PaymentTransactionID int64           `gorm:"column:payment_transaction_id;not null;uniqueIndex:uq_payment_transfers_order_tx"`
	ShopID               uuid.UUID       `gorm:"column:shop_id;type:uuid;not null;index"`
	Amount               int64           `gorm:"column:amount;not null"`
	PlatformFee          int64           `gorm:"column:platform_fee;not null"`
	PlatformPercents     decimal.Decimal `gorm:"column:platform_percents;type:numeric(5,2);not null"`
	IsFiat               bool            `gorm:"column:is_fiat;not null"`
	TransferID           *string         `gorm:"column:transfer_id"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// PayoutTransaction is a seller withdrawal request.
type PayoutTransaction struct {
	ID             int64              `gorm:"column:id;primaryKey;autoIncrement"`
	ShopID         uuid.UUID          `gorm:"column:shop_id;type:uuid;not null;index;uniqueIndex:ux_payout_transactions_open_shop,where:status <> 'paid' AND status <> 'failed' AND status <> 'canceled'"`
	Amount         int64              `gorm:"column:amount;not null"`
	Status         enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'created'"`
	StripePayoutID *string            `gorm:"column:stripe_payout_id;index"`
	FailureReason  *string            `gorm:"column:failure_reason"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
