package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dannyvalenz/fanlink-backend/internal/cart"
	"github.com/dannyvalenz/fanlink-backend/internal/checkout"
	"github.com/dannyvalenz/fanlink-backend/internal/payments"
	"github.com/dannyvalenz/fanlink-backend/pkg/db/models"
	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/outbox"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

type stubProvider struct {
	name         enums.PaymentProvider
	createIntent func(params payments.CreateIntentParams) (*payments.IntentResult, error)
	getIntent    func(id string) (*payments.IntentStatus, error)
}

func (p *stubProvider) Name() enums.PaymentProvider { return p.name }

func (p *stubProvider) CreateIntent(_ context.Context, params payments.CreateIntentParams) (*payments.IntentResult, error) {
	return p.createIntent(params)
}

func (p *stubProvider) GetIntent(_ context.Context, id string) (*payments.IntentStatus, error) {
	return p.getIntent(id)
}

func (p *stubProvider) CreateSubscription(_ context.Context, _ payments.SubscriptionParams) (*payments.SubscriptionResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

type stubCart struct {
	items   map[string][]cart.Item
	cleared int
}

func (s *stubCart) Items(_ context.Context, sessionID string) ([]cart.Item, error) {
	return s.items[sessionID], nil
}

func (s *stubCart) Clear(_ context.Context, sessionID string) error {
	s.cleared++
	delete(s.items, sessionID)
	return nil
}

type stubGuard struct {
	held   map[string]bool
	refuse bool
}

func (s *stubGuard) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if s.refuse {
		return false, nil
	}
	if s.held == nil {
		s.held = map[string]bool{}
	}
	if s.held[key] {
		return false, nil
	}
	s.held[key] = true
	return true, nil
}

func (s *stubGuard) FinalizeGuardKey(paymentID string) string {
	return "fl:finalize:" + paymentID
}

type serviceFixture struct {
	svc      Service
	db       *gorm.DB
	cart     *stubCart
	guard    *stubGuard
	provider *stubProvider
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	db := setupOrdersTestDB(t)
	provider := &stubProvider{
		name: enums.PaymentProviderStripe,
		createIntent: func(params payments.CreateIntentParams) (*payments.IntentResult, error) {
			return &payments.IntentResult{ProviderPaymentID: "pi_" + uuid.NewString(), ClientSecret: "secret"}, nil
		},
	}
	registry, err := payments.NewRegistry(provider)
	require.NoError(t, err)

	cartStub := &stubCart{items: map[string][]cart.Item{}}
	guard := &stubGuard{}

	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(db),
		TransactionRunner: &gormTxRunner{db: db},
		Providers:         registry,
		Cart:              cartStub,
		Outbox:            outbox.NewService(outbox.NewRepository(db), nil),
		Guard:             guard,
		GuardTTL:          time.Hour,
	})
	require.NoError(t, err)

	return &serviceFixture{svc: svc, db: db, cart: cartStub, guard: guard, provider: provider}
}

func seedCart(f *serviceFixture, sessionID string) {
	f.cart.items[sessionID] = []cart.Item{
		{ProductID: uuid.New(), Title: "Tour Shirt", PriceCents: 1500, Quantity: 2},
		{ProductID: uuid.New(), Title: "Signed Vinyl", PriceCents: 2500, Quantity: 1},
	}
}

func cartSession(sessionID string, profileID uuid.UUID) *checkout.Session {
	return &checkout.Session{
		SessionID: sessionID,
		Flow:      enums.FlowKindCart,
		ProfileID: profileID,
		Email:     "fan@example.com",
	}
}

func countOutboxEvents(t *testing.T, db *gorm.DB, eventType enums.OutboxEventType, aggregateID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", eventType, aggregateID).
		Count(&count).Error)
	return count
}

func TestIssueIntentSnapshotsCart(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := uuid.NewString()
	profileID := uuid.New()
	seedCart(f, sessionID)

	intent, err := f.svc.IssueIntent(context.Background(), cartSession(sessionID, profileID))
	require.NoError(t, err)
	assert.Equal(t, int64(5500), intent.TotalCents)
	assert.Equal(t, "secret", intent.PaymentSecret)

	order, err := f.svc.Get(context.Background(), intent.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusInitiatedPayment, order.Status)
	assert.Equal(t, profileID, order.ProfileID)
	require.NotNil(t, order.ProviderPaymentID)
	assert.Equal(t, intent.PaymentID, *order.ProviderPaymentID)
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(1), countOutboxEvents(t, f.db, enums.OutboxEventOrderCreated, order.ID))
}

func TestIssueIntentEmptyCart(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.IssueIntent(context.Background(), cartSession(uuid.NewString(), uuid.New()))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
}

func TestIssueIntentProviderFailureMarksOrderFailed(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := uuid.NewString()
	seedCart(f, sessionID)
	f.provider.createIntent = func(params payments.CreateIntentParams) (*payments.IntentResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodePayment, "card network unavailable")
	}

	_, err := f.svc.IssueIntent(context.Background(), cartSession(sessionID, uuid.New()))
	require.Error(t, err)

	var order models.Order
	require.NoError(t, f.db.Where("session_id = ?", sessionID).First(&order).Error)
	assert.Equal(t, enums.OrderStatusFailed, order.Status)
	require.NotNil(t, order.FailureReason)
}

func TestStartPaymentAmountMismatch(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := uuid.NewString()
	seedCart(f, sessionID)

	_, err := f.svc.StartPayment(context.Background(), StartPaymentInput{
		SessionID:   sessionID,
		ProfileID:   uuid.New(),
		Email:       "fan@example.com",
		AmountCents: 100,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func issueTestIntent(t *testing.T, f *serviceFixture, sessionID string, profileID uuid.UUID) *checkout.Intent {
	t.Helper()
	seedCart(f, sessionID)
	intent, err := f.svc.IssueIntent(context.Background(), cartSession(sessionID, profileID))
	require.NoError(t, err)
	return intent
}

func TestFinalizePaidClearsCartOnce(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := uuid.NewString()
	profileID := uuid.New()
	intent := issueTestIntent(t, f, sessionID, profileID)

	f.provider.getIntent = func(id string) (*payments.IntentStatus, error) {
		return &payments.IntentStatus{
			ProviderPaymentID: id,
			State:             payments.IntentStateSucceeded,
			AmountCents:       intent.TotalCents,
		}, nil
	}

	input := FinalizeInput{
		PaymentID:    intent.PaymentID,
		ProviderName: enums.PaymentProviderStripe,
		ProfileID:    profileID,
		OrderID:      intent.OrderID,
		SessionID:    sessionID,
	}
	order, err := f.svc.Finalize(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	require.NotNil(t, order.PaidAt)
	assert.Equal(t, 1, f.cart.cleared)
	assert.Equal(t, int64(1), countOutboxEvents(t, f.db, enums.OutboxEventOrderPaid, order.ID))

	// Repeat call observes the final order without re-transitioning.
	again, err := f.svc.Finalize(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, again.Status)
	assert.Equal(t, 1, f.cart.cleared)
	assert.Equal(t, int64(1), countOutboxEvents(t, f.db, enums.OutboxEventOrderPaid, order.ID))
}

func TestFinalizePendingPayment(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := uuid.NewString()
	profileID := uuid.New()
	intent := issueTestIntent(t, f, sessionID, profileID)

	f.provider.getIntent = func(id string) (*payments.IntentStatus, error) {
		return &payments.IntentStatus{ProviderPaymentID: id, State: payments.IntentStatePending}, nil
	}

	_, err := f.svc.Finalize(context.Background(), FinalizeInput{
		PaymentID:    intent.PaymentID,
		ProviderName: enums.PaymentProviderStripe,
		ProfileID:    profileID,
		OrderID:      intent.OrderID,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
}

func TestFinalizeAmountMismatch(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := uuid.NewString()
	profileID := uuid.New()
	intent := issueTestIntent(t, f, sessionID, profileID)

	f.provider.getIntent = func(id string) (*payments.IntentStatus, error) {
		return &payments.IntentStatus{
			ProviderPaymentID: id,
			State:             payments.IntentStateSucceeded,
			AmountCents:       intent.TotalCents - 100,
		}, nil
	}

	_, err := f.svc.Finalize(context.Background(), FinalizeInput{
		PaymentID:    intent.PaymentID,
		ProviderName: enums.PaymentProviderStripe,
		ProfileID:    profileID,
		OrderID:      intent.OrderID,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
}

func TestFinalizeGuardLostReturnsStoredOrder(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := uuid.NewString()
	profileID := uuid.New()
	intent := issueTestIntent(t, f, sessionID, profileID)
	f.guard.refuse = true

	f.provider.getIntent = func(id string) (*payments.IntentStatus, error) {
		return &payments.IntentStatus{
			ProviderPaymentID: id,
			State:             payments.IntentStateSucceeded,
			AmountCents:       intent.TotalCents,
		}, nil
	}

	order, err := f.svc.Finalize(context.Background(), FinalizeInput{
		PaymentID:    intent.PaymentID,
		ProviderName: enums.PaymentProviderStripe,
		ProfileID:    profileID,
		OrderID:      intent.OrderID,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusInitiatedPayment, order.Status)
	assert.Equal(t, int64(0), countOutboxEvents(t, f.db, enums.OutboxEventOrderPaid, order.ID))
}

func TestFinalizeFailedPayment(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := uuid.NewString()
	profileID := uuid.New()
	intent := issueTestIntent(t, f, sessionID, profileID)

	f.provider.getIntent = func(id string) (*payments.IntentStatus, error) {
		return &payments.IntentStatus{ProviderPaymentID: id, State: payments.IntentStateFailed}, nil
	}

	order, err := f.svc.Finalize(context.Background(), FinalizeInput{
		PaymentID:    intent.PaymentID,
		ProviderName: enums.PaymentProviderStripe,
		ProfileID:    profileID,
		OrderID:      intent.OrderID,
		SessionID:    sessionID,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaymentFailed, order.Status)
	assert.Equal(t, 0, f.cart.cleared)
	assert.Equal(t, int64(1), countOutboxEvents(t, f.db, enums.OutboxEventOrderPaymentFailed, order.ID))
}

func TestApplyPaymentResultFromWebhook(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := uuid.NewString()
	profileID := uuid.New()
	intent := issueTestIntent(t, f, sessionID, profileID)

	order, err := f.svc.ApplyPaymentResult(context.Background(), intent.PaymentID, payments.IntentStateSucceeded, "")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	assert.Equal(t, 1, f.cart.cleared)

	// A redelivered webhook observes the settled order.
	again, err := f.svc.ApplyPaymentResult(context.Background(), intent.PaymentID, payments.IntentStateSucceeded, "")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, again.Status)
	assert.Equal(t, int64(1), countOutboxEvents(t, f.db, enums.OutboxEventOrderPaid, order.ID))
}
