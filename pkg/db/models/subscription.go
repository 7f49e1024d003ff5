package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
)

// Subscription records a buyer's recurring membership to a tier.
type Subscription struct {
	ID                     uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProfileID              uuid.UUID                `gorm:"column:profile_id;type:uuid;not null"`
	TierID                 uuid.UUID                `gorm:"column:tier_id;type:uuid;not null"`
	Tier                   *MembershipTier          `gorm:"foreignKey:TierID"`
	Email                  string                   `gorm:"column:email;not null"`
	BillingCycle           enums.BillingCycle       `gorm:"column:billing_cycle;not null"`
	AmountCents            int64                    `gorm:"column:amount_cents;not null"`
	Currency               string                   `gorm:"column:currency;not null"`
	Status                 enums.SubscriptionStatus `gorm:"column:status;not null"`
	PaymentProvider        enums.PaymentProvider    `gorm:"column:payment_provider;not null"`
	ProviderSubscriptionID *string                  `gorm:"column:provider_subscription_id;uniqueIndex"`
	ProviderPaymentID      *string                  `gorm:"column:provider_payment_id;uniqueIndex"`
	ActivatedAt            *time.Time               `gorm:"column:activated_at"`
	CancelledAt            *time.Time               `gorm:"column:cancelled_at"`
	CreatedAt              time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
