package model

import (
	"time"

	"github.com/google/uuid"
)

// Store is one retailer location. Charges are scoped to the store's Stripe
// Connect account; a store without StripeAccountID cannot be reconciled.
type Store struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name            string    `gorm:"not null"`
	StripeAccountID *string   `gorm:"type:varchar(64);uniqueIndex"`
	Currency        string    `gorm:"type:varchar(3);not null;default:'NOK'"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Device is a POS terminal registered to a store.
type Device struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	StoreID   uuid.UUID `gorm:"type:uuid;index;not null"`
	Label     string    `gorm:"not null"`
	Serial    *string   `gorm:"type:varchar(64)"`
	CreatedAt time.Time
}
