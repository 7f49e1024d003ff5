package models

import (
	"time"

	"github.com/google/uuid"
)

// MembershipTier is a recurring support level offered on an artist profile.
type MembershipTier struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProfileID         uuid.UUID `gorm:"column:profile_id;type:uuid;not null"`
	Name              string    `gorm:"column:name;not null"`
	Description       *string   `gorm:"column:description"`
	MonthlyPriceCents int64     `gorm:"column:monthly_price_cents;not null"`
	YearlyPriceCents  int64     `gorm:"column:yearly_price_cents;not null"`
	AllowCustomAmount bool      `gorm:"column:allow_custom_amount;not null;default:false"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
