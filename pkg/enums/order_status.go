package enums

import "fmt"

// OrderStatus tracks the lifecycle of an order. Transitions happen
// server-side only; API consumers observe the status via reads.
type OrderStatus string

const (
	OrderStatusInitiatedPayment OrderStatus = "initiated_payment"
	OrderStatusPaymentFailed    OrderStatus = "payment_failed"
	OrderStatusFailed           OrderStatus = "failed"
	OrderStatusPaid             OrderStatus = "paid"
	OrderStatusProcessing       OrderStatus = "processing"
	OrderStatusShipped          OrderStatus = "shipped"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusCancelled        OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusInitiatedPayment,
	OrderStatusPaymentFailed,
	OrderStatusFailed,
	OrderStatusPaid,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusInitiatedPayment: {OrderStatusPaid, OrderStatusPaymentFailed, OrderStatusProcessing, OrderStatusFailed, OrderStatusCancelled},
	// a failed payment may be retried with a fresh intent
	OrderStatusPaymentFailed: {OrderStatusInitiatedPayment, OrderStatusFailed},
	OrderStatusProcessing:    {OrderStatusPaid, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusPaid:          {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:       {OrderStatusDelivered},
	OrderStatusFailed:        {},
	OrderStatusDelivered:     {},
	OrderStatusCancelled:     {},
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (o OrderStatus) IsTerminal() bool {
	next, ok := orderStatusTransitions[o]
	return ok && len(next) == 0
}

// IsSettled reports whether the buyer's payment completed (the cart may be cleared).
func (o OrderStatus) IsSettled() bool {
	return o == OrderStatusPaid || o == OrderStatusDelivered
}

// CanTransition reports whether the status may move to the target.
func (o OrderStatus) CanTransition(target OrderStatus) bool {
	for _, candidate := range orderStatusTransitions[o] {
		if candidate == target {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
