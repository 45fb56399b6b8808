package models

import (
	"time"

	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
)

// CoinActionQueue is a deferred coin-ledger operation.
type CoinActionQueue struct {
	ID                 int64                  `gorm:"column:id;primaryKey;autoIncrement"`
	Action             enums.CoinAction       `gorm:"column:action;type:text;not null"`
	UserExternalID     string                 `gorm:"column:user_external_id;not null"`
	AssetID            string                 `gorm:"column:asset_id;not null"`
	Amount             int64                  `gorm:"column:amount;not null"`
	Status             enums.CoinActionStatus `gorm:"column:status;type:text;not null;default:'created';index"`
	StartedAt          time.Time              `gorm:"column:started_at;not null"`
	OrderGroupID       *int64                 `gorm:"column:order_group_id"`
	PaymentServiceTxID *string                `gorm:"column:payment_service_tx_id"`
	CompletedAt        *time.Time             `gorm:"column:completed_at"`
	CreatedAt          time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
