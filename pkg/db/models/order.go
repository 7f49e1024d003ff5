package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
)

// Order is the server-owned purchase record. Status transitions are applied
// through the orders service only; API consumers read the projection.
type Order struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProfileID         uuid.UUID             `gorm:"column:profile_id;type:uuid;not null"`
	SessionID         string                `gorm:"column:session_id;not null"`
	UserID            *uuid.UUID            `gorm:"column:user_id;type:uuid"`
	EventID           *uuid.UUID            `gorm:"column:event_id;type:uuid"`
	Kind              enums.FlowKind        `gorm:"column:kind;not null"`
	Email             string                `gorm:"column:email;not null"`
	FirstName         string                `gorm:"column:first_name;not null;default:''"`
	LastName          string                `gorm:"column:last_name;not null;default:''"`
	Status            enums.OrderStatus     `gorm:"column:status;not null;default:'initiated_payment'"`
	Currency          string                `gorm:"column:currency;not null;default:'usd'"`
	SubTotalCents     int64                 `gorm:"column:sub_total_cents;not null"`
	ShippingCostCents int64                 `gorm:"column:shipping_cost_cents;not null;default:0"`
	TotalCents        int64                 `gorm:"column:total_cents;not null"`
	PaymentProvider   enums.PaymentProvider `gorm:"column:payment_provider;not null;default:'stripe'"`
	ProviderPaymentID *string               `gorm:"column:provider_payment_id"`
	FailureReason     *string               `gorm:"column:failure_reason"`
	PaidAt            *time.Time            `gorm:"column:paid_at"`
	Items             []OrderItem           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
