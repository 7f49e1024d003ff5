package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/dannyvalenz/fanlink-backend/internal/payments"
	"github.com/dannyvalenz/fanlink-backend/pkg/db/models"
	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
)

type orderCall struct {
	paymentID string
	state     payments.IntentState
	reason    string
}

type stubOrders struct {
	calls    []orderCall
	notFound bool
}

func (s *stubOrders) ApplyPaymentResult(_ context.Context, paymentID string, state payments.IntentState, reason string) (*models.Order, error) {
	s.calls = append(s.calls, orderCall{paymentID: paymentID, state: state, reason: reason})
	if s.notFound {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment")
	}
	status := enums.OrderStatusPaid
	if state == payments.IntentStateFailed {
		status = enums.OrderStatusPaymentFailed
	}
	return &models.Order{ID: uuid.New(), Status: status}, nil
}

type stubMemberships struct {
	calls    int
	notFound bool
}

func (s *stubMemberships) ApplyPaymentResult(_ context.Context, _ string, state payments.IntentState) (*models.Subscription, error) {
	s.calls++
	if s.notFound {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no subscription for payment")
	}
	status := enums.SubscriptionStatusActive
	if state == payments.IntentStateFailed {
		status = enums.SubscriptionStatusCancelled
	}
	return &models.Subscription{ID: uuid.New(), Status: status}, nil
}

type stubDedupe struct {
	seen map[string]bool
}

func (s *stubDedupe) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func (s *stubDedupe) IdempotencyKey(scope, id string) string {
	return "fl:idempotency:" + scope + ":" + id
}

type fixture struct {
	svc         *Service
	orders      *stubOrders
	memberships *stubMemberships
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	orders := &stubOrders{}
	memberships := &stubMemberships{}
	svc, err := NewService(ServiceParams{
		Orders:      orders,
		Memberships: memberships,
		Dedupe:      &stubDedupe{},
		DedupeTTL:   24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, orders: orders, memberships: memberships}
}

func paymentIntentEvent(t *testing.T, eventType stripe.EventType, payload map[string]any) *stripe.Event {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &stripe.Event{
		ID:   "evt_" + uuid.NewString(),
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventSettlesOrder(t *testing.T) {
	f := newFixture(t)
	event := paymentIntentEvent(t, stripe.EventTypePaymentIntentSucceeded, map[string]any{"id": "pi_123"})

	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(f.orders.calls) != 1 {
		t.Fatalf("order calls = %d, want 1", len(f.orders.calls))
	}
	call := f.orders.calls[0]
	if call.paymentID != "pi_123" || call.state != payments.IntentStateSucceeded {
		t.Fatalf("unexpected call %+v", call)
	}
	if f.memberships.calls != 0 {
		t.Fatal("membership settler called for an order payment")
	}
}

func TestHandleEventFailureCarriesReason(t *testing.T) {
	f := newFixture(t)
	event := paymentIntentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, map[string]any{
		"id":                 "pi_456",
		"last_payment_error": map[string]any{"message": "Your card was declined."},
	})

	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	call := f.orders.calls[0]
	if call.state != payments.IntentStateFailed {
		t.Fatalf("state = %q, want failed", call.state)
	}
	if call.reason != "Your card was declined." {
		t.Fatalf("reason = %q", call.reason)
	}
}

func TestHandleEventFallsBackToSubscription(t *testing.T) {
	f := newFixture(t)
	f.orders.notFound = true
	event := paymentIntentEvent(t, stripe.EventTypePaymentIntentSucceeded, map[string]any{"id": "pi_789"})

	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if f.memberships.calls != 1 {
		t.Fatalf("membership calls = %d, want 1", f.memberships.calls)
	}
}

func TestHandleEventUnknownPaymentAcked(t *testing.T) {
	f := newFixture(t)
	f.orders.notFound = true
	f.memberships.notFound = true
	event := paymentIntentEvent(t, stripe.EventTypePaymentIntentSucceeded, map[string]any{"id": "pi_unknown"})

	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown payment should be acknowledged, got %v", err)
	}
}

func TestHandleEventDeduplicatesByEventID(t *testing.T) {
	f := newFixture(t)
	event := paymentIntentEvent(t, stripe.EventTypePaymentIntentSucceeded, map[string]any{"id": "pi_dup"})

	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if len(f.orders.calls) != 1 {
		t.Fatalf("order calls = %d, want 1", len(f.orders.calls))
	}
}

func TestHandleEventIgnoresOtherTypes(t *testing.T) {
	f := newFixture(t)
	event := paymentIntentEvent(t, stripe.EventTypeChargeRefunded, map[string]any{"id": "ch_1"})

	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(f.orders.calls) != 0 || f.memberships.calls != 0 {
		t.Fatal("settlers called for an unhandled event type")
	}
}
