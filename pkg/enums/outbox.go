package enums

// OutboxEventType names a domain event queued through the outbox.
type OutboxEventType string

const (
	OutboxEventOrderCreated          OutboxEventType = "order.created"
	OutboxEventOrderPaid             OutboxEventType = "order.paid"
	OutboxEventOrderPaymentFailed    OutboxEventType = "order.payment_failed"
	OutboxEventSubscriptionActivated OutboxEventType = "subscription.activated"
)

// String implements fmt.Stringer.
func (t OutboxEventType) String() string {
	return string(t)
}

// OutboxAggregateType names the aggregate an outbox event refers to.
type OutboxAggregateType string

const (
	OutboxAggregateOrder        OutboxAggregateType = "order"
	OutboxAggregateSubscription OutboxAggregateType = "subscription"
)

// String implements fmt.Stringer.
func (t OutboxAggregateType) String() string {
	return string(t)
}
