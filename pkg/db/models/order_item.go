package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
)

// OrderItem is a line-level snapshot captured when the order was created.
// Gift recipient fields mirror the cart item they were copied from.
type OrderItem struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	ProductID        *string             `gorm:"column:product_id"`
	ProductVariantID *string             `gorm:"column:product_variant_id"`
	TicketTypeID     *uuid.UUID          `gorm:"column:ticket_type_id;type:uuid"`
	Title            string              `gorm:"column:title;not null"`
	UnitPriceCents   int64               `gorm:"column:unit_price_cents;not null"`
	Quantity         int                 `gorm:"column:quantity;not null"`
	TotalCents       int64               `gorm:"column:total_cents;not null"`
	IsGift           bool                `gorm:"column:is_gift;not null;default:false"`
	RecipientName    *string             `gorm:"column:recipient_name"`
	RecipientEmail   *string             `gorm:"column:recipient_email"`
	RecipientMessage *string             `gorm:"column:recipient_message"`
	Color            *string             `gorm:"column:color"`
	Size             *string             `gorm:"column:size"`
	DeliveryType     *enums.DeliveryType `gorm:"column:delivery_type"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
}
