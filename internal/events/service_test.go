package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dannyvalenz/fanlink-backend/internal/checkout"
	"github.com/dannyvalenz/fanlink-backend/internal/orders"
	"github.com/dannyvalenz/fanlink-backend/internal/payments"
	"github.com/dannyvalenz/fanlink-backend/pkg/db/models"
	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/outbox"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:events_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schemas := []string{
		`CREATE TABLE events (
  id TEXT PRIMARY KEY,
  profile_id TEXT NOT NULL,
  title TEXT NOT NULL,
  description TEXT,
  venue_name TEXT,
  starts_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE ticket_types (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  name TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  quantity_available INTEGER NOT NULL DEFAULT 0,
  quantity_sold INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  profile_id TEXT NOT NULL,
  session_id TEXT NOT NULL,
  user_id TEXT,
  event_id TEXT,
  kind TEXT NOT NULL,
  email TEXT NOT NULL,
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'initiated_payment',
  currency TEXT NOT NULL DEFAULT 'usd',
  sub_total_cents INTEGER NOT NULL,
  shipping_cost_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  payment_provider TEXT NOT NULL DEFAULT 'stripe',
  provider_payment_id TEXT,
  failure_reason TEXT,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT,
  product_variant_id TEXT,
  ticket_type_id TEXT,
  title TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  total_cents INTEGER NOT NULL,
  is_gift INTEGER NOT NULL DEFAULT 0,
  recipient_name TEXT,
  recipient_email TEXT,
  recipient_message TEXT,
  color TEXT,
  size TEXT,
  delivery_type TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	}
	for _, schema := range schemas {
		if err := db.Exec(schema).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

type stubProvider struct {
	createIntent func(params payments.CreateIntentParams) (*payments.IntentResult, error)
}

func (p *stubProvider) Name() enums.PaymentProvider { return enums.PaymentProviderStripe }

func (p *stubProvider) CreateIntent(_ context.Context, params payments.CreateIntentParams) (*payments.IntentResult, error) {
	if p.createIntent != nil {
		return p.createIntent(params)
	}
	return &payments.IntentResult{ProviderPaymentID: "pi_" + uuid.NewString(), ClientSecret: "secret"}, nil
}

func (p *stubProvider) GetIntent(_ context.Context, _ string) (*payments.IntentStatus, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (p *stubProvider) CreateSubscription(_ context.Context, _ payments.SubscriptionParams) (*payments.SubscriptionResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

type fixture struct {
	svc      Service
	db       *gorm.DB
	provider *stubProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	provider := &stubProvider{}
	registry, err := payments.NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(db),
		OrdersRepo:        orders.NewRepository(db),
		TransactionRunner: &gormTxRunner{db: db},
		Providers:         registry,
		Outbox:            outbox.NewService(outbox.NewRepository(db), nil),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, db: db, provider: provider}
}

func seedEvent(t *testing.T, db *gorm.DB, profileID uuid.UUID, available int) (*models.Event, *models.TicketType) {
	t.Helper()

	event := &models.Event{
		ID:        uuid.New(),
		ProfileID: profileID,
		Title:     "Album Release Show",
		StartsAt:  time.Now().Add(30 * 24 * time.Hour),
	}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("seed event: %v", err)
	}
	ticket := &models.TicketType{
		ID:                uuid.New(),
		EventID:           event.ID,
		Name:              "General Admission",
		PriceCents:        2000,
		QuantityAvailable: available,
	}
	if err := db.Create(ticket).Error; err != nil {
		t.Fatalf("seed ticket type: %v", err)
	}
	return event, ticket
}

func TestGetEventReturnsCatalog(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()
	event, ticket := seedEvent(t, f.db, profileID, 10)

	got, err := f.svc.GetEvent(context.Background(), event.ID, profileID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got.Title != "Album Release Show" {
		t.Fatalf("unexpected event %+v", got)
	}
	if len(got.Tickets) != 1 || got.Tickets[0].ID != ticket.ID {
		t.Fatalf("expected ticket catalog, got %+v", got.Tickets)
	}

	if _, err := f.svc.GetEvent(context.Background(), event.ID, uuid.New()); err == nil {
		t.Fatal("event should not resolve for another profile")
	} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestCheckoutReservesAndSnapshots(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()
	event, ticket := seedEvent(t, f.db, profileID, 10)

	intent, err := f.svc.Checkout(context.Background(), CheckoutInput{
		EventID:   event.ID,
		ProfileID: profileID,
		SessionID: uuid.NewString(),
		Selection: map[string]int{ticket.ID.String(): 2},
		Email:     "fan@example.com",
		FirstName: "Dana",
		LastName:  "Rivers",
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if intent.TotalCents != 4000 {
		t.Fatalf("expected 4000 cents total, got %d", intent.TotalCents)
	}
	if intent.PaymentSecret == "" {
		t.Fatal("expected a payment secret")
	}

	var tt models.TicketType
	if err := f.db.First(&tt, "id = ?", ticket.ID).Error; err != nil {
		t.Fatalf("reload ticket type: %v", err)
	}
	if tt.QuantityAvailable != 8 || tt.QuantitySold != 2 {
		t.Fatalf("unexpected inventory state: %+v", tt)
	}

	var order models.Order
	if err := f.db.Preload("Items").First(&order, "id = ?", intent.OrderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Kind != enums.FlowKindTickets || order.TotalCents != 4000 {
		t.Fatalf("unexpected order %+v", order)
	}
	if len(order.Items) != 1 || order.Items[0].TicketTypeID == nil || *order.Items[0].TicketTypeID != ticket.ID {
		t.Fatalf("unexpected items %+v", order.Items)
	}
	if order.ProviderPaymentID == nil || *order.ProviderPaymentID != intent.PaymentID {
		t.Fatal("provider payment id not bound")
	}
}

func TestCheckoutInsufficientInventory(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()
	event, ticket := seedEvent(t, f.db, profileID, 1)

	_, err := f.svc.Checkout(context.Background(), CheckoutInput{
		EventID:   event.ID,
		ProfileID: profileID,
		SessionID: uuid.NewString(),
		Selection: map[string]int{ticket.ID.String(): 3},
		Email:     "fan@example.com",
	})
	if err == nil {
		t.Fatal("expected inventory conflict")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("unexpected error %v", err)
	}

	var tt models.TicketType
	if err := f.db.First(&tt, "id = ?", ticket.ID).Error; err != nil {
		t.Fatalf("reload ticket type: %v", err)
	}
	if tt.QuantityAvailable != 1 || tt.QuantitySold != 0 {
		t.Fatalf("inventory must be untouched, got %+v", tt)
	}

	var count int64
	if err := f.db.Model(&models.Order{}).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 0 {
		t.Fatal("no order should exist after a failed reservation")
	}
}

func TestCheckoutUnknownTicketType(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()
	event, _ := seedEvent(t, f.db, profileID, 5)

	_, err := f.svc.Checkout(context.Background(), CheckoutInput{
		EventID:   event.ID,
		ProfileID: profileID,
		SessionID: uuid.NewString(),
		Selection: map[string]int{uuid.NewString(): 1},
		Email:     "fan@example.com",
	})
	if err == nil {
		t.Fatal("expected unknown ticket rejection")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestProviderFailureReleasesTickets(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()
	event, ticket := seedEvent(t, f.db, profileID, 5)
	f.provider.createIntent = func(params payments.CreateIntentParams) (*payments.IntentResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodePayment, "provider unavailable")
	}

	_, err := f.svc.Checkout(context.Background(), CheckoutInput{
		EventID:   event.ID,
		ProfileID: profileID,
		SessionID: uuid.NewString(),
		Selection: map[string]int{ticket.ID.String(): 2},
		Email:     "fan@example.com",
	})
	if err == nil {
		t.Fatal("expected provider failure to surface")
	}

	var tt models.TicketType
	if err := f.db.First(&tt, "id = ?", ticket.ID).Error; err != nil {
		t.Fatalf("reload ticket type: %v", err)
	}
	if tt.QuantityAvailable != 5 || tt.QuantitySold != 0 {
		t.Fatalf("inventory must be restored, got %+v", tt)
	}

	var order models.Order
	if err := f.db.First(&order).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != enums.OrderStatusFailed {
		t.Fatalf("order should be failed, got %s", order.Status)
	}
}

func TestIssueIntentUsesSessionSelection(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()
	event, ticket := seedEvent(t, f.db, profileID, 10)
	eventID := event.ID

	intent, err := f.svc.IssueIntent(context.Background(), &checkout.Session{
		SessionID:       uuid.NewString(),
		Flow:            enums.FlowKindTickets,
		ProfileID:       profileID,
		EventID:         &eventID,
		TicketSelection: map[string]int{ticket.ID.String(): 3},
		Email:           "fan@example.com",
		FirstName:       "Dana",
		LastName:        "Rivers",
	})
	if err != nil {
		t.Fatalf("issue intent: %v", err)
	}
	if intent.TotalCents != 6000 {
		t.Fatalf("expected 6000 cents, got %d", intent.TotalCents)
	}
}
