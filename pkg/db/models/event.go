package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is a ticketed happening published on an artist profile.
type Event struct {
	ID          uuid.UUID    `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProfileID   uuid.UUID    `gorm:"column:profile_id;type:uuid;not null"`
	Title       string       `gorm:"column:title;not null"`
	Description *string      `gorm:"column:description"`
	VenueName   *string      `gorm:"column:venue_name"`
	StartsAt    time.Time    `gorm:"column:starts_at;not null"`
	Tickets     []TicketType `gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;autoUpdateTime"`
}

// TicketType is one purchasable ticket tier of an event. QuantityAvailable
// is decremented transactionally when an order reserves tickets.
type TicketType struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID           uuid.UUID `gorm:"column:event_id;type:uuid;not null"`
	Name              string    `gorm:"column:name;not null"`
	PriceCents        int64     `gorm:"column:price_cents;not null"`
	QuantityAvailable int       `gorm:"column:quantity_available;not null;default:0"`
	QuantitySold      int       `gorm:"column:quantity_sold;not null;default:0"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
