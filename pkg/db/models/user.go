package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the local projection of an SSO identity.
type User struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ExternalID  string    `gorm:"column:external_id;not null;uniqueIndex"`
	Email       string    `gorm:"column:email;not null"`
	DisplayName string    `gorm:"column:display_name"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	assignID(&u.ID)
	return nil
}

// PaymentCustomer links a user to a gateway customer profile.
type PaymentCustomer struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID           uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	StripeCustomerID string    `gorm:"column:stripe_customer_id;not null"`
	IsDefault        bool      `gorm:"column:is_default;not null;default:false"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (c *PaymentCustomer) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// ShippingAddress is a saved destination. Orders copy it rather than reference it.
type ShippingAddress struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	RecipientName string    `gorm:"column:recipient_name;not null"`
	PostalCode    string    `gorm:"column:postal_code;not null"`
	CountryCode   string    `gorm:"column:country_code;not null"`
	Prefecture    string    `gorm:"column:prefecture"`
	City          string    `gorm:"column:city"`
	Line1         string    `gorm:"column:line1;not null"`
	Line2         string    `gorm:"column:line2"`
	Phone         string    `gorm:"column:phone"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *ShippingAddress) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}
