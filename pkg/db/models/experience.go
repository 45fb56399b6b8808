package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vibes-market-backend/pkg/enums"
)

type Experience struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ShopID    uuid.UUID           `gorm:"column:shop_id;type:uuid;not null;index"`
	Title     string              `gorm:"column:title;not null"`
	ImageURL  string              `gorm:"column:image_url"`
	Status    enums.ProductStatus `gorm:"column:status;type:text;not null;default:'published'"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *Experience) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}

// SessionTicket is the sellable unit of an experience.
type SessionTicket struct {
	ID             uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	ExperienceID   uuid.UUID   `gorm:"column:experience_id;type:uuid;not null;index"`
	Experience     *Experience `gorm:"foreignKey:ExperienceID"`
	Title          string      `gorm:"column:title;not null"`
	Price          int64       `gorm:"column:price;not null"`
	Quantity       *int64      `gorm:"column:quantity"`
	PurchasedCount int64       `gorm:"column:purchased_count;not null;default:0"`
	StartsAt       *time.Time  `gorm:"column:starts_at"`
	CreatedAt      time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *SessionTicket) BeforeCreate(*gorm.DB) error {
	assignID(&t.ID)
	return nil
}
