package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
)

// OrderCreatedEvent signals a new order entering payment.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID      `json:"orderId"`
	ProfileID  uuid.UUID      `json:"profileId"`
	Kind       enums.FlowKind `json:"kind"`
	TotalCents int64          `json:"totalCents"`
	Currency   string         `json:"currency"`
}

// OrderPaidEvent is emitted when a payment is confirmed and the order settles.
type OrderPaidEvent struct {
	OrderID           uuid.UUID             `json:"orderId"`
	ProfileID         uuid.UUID             `json:"profileId"`
	Kind              enums.FlowKind        `json:"kind"`
	TotalCents        int64                 `json:"totalCents"`
	Currency          string                `json:"currency"`
	PaymentProvider   enums.PaymentProvider `json:"paymentProvider"`
	ProviderPaymentID string                `json:"providerPaymentId"`
	PaidAt            time.Time             `json:"paidAt"`
}

// OrderPaymentFailedEvent is emitted when the provider reports a failed charge.
type OrderPaymentFailedEvent struct {
	OrderID         uuid.UUID             `json:"orderId"`
	ProfileID       uuid.UUID             `json:"profileId"`
	PaymentProvider enums.PaymentProvider `json:"paymentProvider"`
	FailureReason   string                `json:"failureReason,omitempty"`
}

// SubscriptionActivatedEvent is emitted when a membership becomes active.
type SubscriptionActivatedEvent struct {
	SubscriptionID uuid.UUID          `json:"subscriptionId"`
	ProfileID      uuid.UUID          `json:"profileId"`
	TierID         uuid.UUID          `json:"tierId"`
	BillingCycle   enums.BillingCycle `json:"billingCycle"`
	AmountCents    int64              `json:"amountCents"`
	ActivatedAt    time.Time          `json:"activatedAt"`
}
