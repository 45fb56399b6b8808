package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
)

// OrderingItem is an in-flight reservation against a product or variant.
// Rows are append-only; only PaymentIntentID/Type are ever attached later.
type OrderingItem struct {
	ID              int64          `gorm:"column:id;primaryKey;autoIncrement"`
	UserID          uuid.UUID      `gorm:"column:user_id;type:uuid;not null;index"`
	ProductID       uuid.UUID      `gorm:"column:product_id;type:uuid;not null;index"`
	ParameterSetID  *uuid.UUID     `gorm:"column:parameter_set_id;type:uuid;index"`
	Quantity        int64          `gorm:"column:quantity;not null"`
	Type            enums.LockType `gorm:"column:type;type:text;not null"`
	PaymentIntentID *string        `gorm:"column:payment_intent_id"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime;index"`
}

// ExperienceOrderManagement is an in-flight reservation against a session ticket.
type ExperienceOrderManagement struct {
	ID              int64          `gorm:"column:id;primaryKey;autoIncrement"`
	UserID          uuid.UUID      `gorm:"column:user_id;type:uuid;not null;index"`
	SessionTicketID uuid.UUID      `gorm:"column:session_ticket_id;type:uuid;not null;index"`
	Quantity        int64          `gorm:"column:quantity;not null"`
	Type            enums.LockType `gorm:"column:type;type:text;not null"`
	PaymentIntentID *string        `gorm:"column:payment_intent_id"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime;index"`
}
