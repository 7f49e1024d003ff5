package membership

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dannyvalenz/fanlink-backend/internal/checkout"
	"github.com/dannyvalenz/fanlink-backend/internal/payments"
	"github.com/dannyvalenz/fanlink-backend/pkg/db/models"
	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/outbox"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:membership_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schemas := []string{
		`CREATE TABLE membership_tiers (
  id TEXT PRIMARY KEY,
  profile_id TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  monthly_price_cents INTEGER NOT NULL,
  yearly_price_cents INTEGER NOT NULL,
  allow_custom_amount INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE subscriptions (
  id TEXT PRIMARY KEY,
  profile_id TEXT NOT NULL,
  tier_id TEXT NOT NULL,
  email TEXT NOT NULL,
  billing_cycle TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL,
  payment_provider TEXT NOT NULL,
  provider_subscription_id TEXT,
  provider_payment_id TEXT,
  activated_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
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
	createSubscription func(params payments.SubscriptionParams) (*payments.SubscriptionResult, error)
	getIntent          func(paymentID string) (*payments.IntentStatus, error)
}

func (p *stubProvider) Name() enums.PaymentProvider { return enums.PaymentProviderStripe }

func (p *stubProvider) CreateIntent(_ context.Context, _ payments.CreateIntentParams) (*payments.IntentResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (p *stubProvider) GetIntent(_ context.Context, paymentID string) (*payments.IntentStatus, error) {
	if p.getIntent != nil {
		return p.getIntent(paymentID)
	}
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (p *stubProvider) CreateSubscription(_ context.Context, params payments.SubscriptionParams) (*payments.SubscriptionResult, error) {
	if p.createSubscription != nil {
		return p.createSubscription(params)
	}
	return &payments.SubscriptionResult{
		ProviderSubscriptionID: "sub_" + uuid.NewString(),
		ProviderPaymentID:      "pi_" + uuid.NewString(),
		ClientSecret:           "secret",
	}, nil
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

type fixture struct {
	svc      Service
	db       *gorm.DB
	provider *stubProvider
	guard    *stubGuard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	provider := &stubProvider{}
	guard := &stubGuard{}
	registry, err := payments.NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(db),
		TransactionRunner: &gormTxRunner{db: db},
		Providers:         registry,
		Outbox:            outbox.NewService(outbox.NewRepository(db), nil),
		Guard:             guard,
		GuardTTL:          time.Hour,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, db: db, provider: provider, guard: guard}
}

func seedTier(t *testing.T, db *gorm.DB, profileID uuid.UUID, allowCustom bool) *models.MembershipTier {
	t.Helper()

	tier := &models.MembershipTier{
		ID:                uuid.New(),
		ProfileID:         profileID,
		Name:              "Backstage",
		MonthlyPriceCents: 500,
		YearlyPriceCents:  5000,
		AllowCustomAmount: allowCustom,
	}
	if err := db.Create(tier).Error; err != nil {
		t.Fatalf("seed tier: %v", err)
	}
	return tier
}

func outboxCount(t *testing.T, db *gorm.DB, aggregateID uuid.UUID) int64 {
	t.Helper()

	var count int64
	if err := db.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", aggregateID, enums.OutboxEventSubscriptionActivated).
		Count(&count).Error; err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	return count
}

func TestListTiersOrderedByPrice(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()

	premium := &models.MembershipTier{
		ID: uuid.New(), ProfileID: profileID, Name: "Inner Circle",
		MonthlyPriceCents: 2000, YearlyPriceCents: 20000,
	}
	if err := f.db.Create(premium).Error; err != nil {
		t.Fatalf("seed tier: %v", err)
	}
	basic := seedTier(t, f.db, profileID, false)
	seedTier(t, f.db, uuid.New(), false) // another profile

	tiers, err := f.svc.ListTiers(context.Background(), profileID)
	if err != nil {
		t.Fatalf("list tiers: %v", err)
	}
	if len(tiers) != 2 {
		t.Fatalf("len(tiers) = %d, want 2", len(tiers))
	}
	if tiers[0].ID != basic.ID || tiers[1].ID != premium.ID {
		t.Fatalf("tiers not ordered by monthly price ascending")
	}
}

func TestCreateSubscriptionUsesTierPrice(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()
	tier := seedTier(t, f.db, profileID, false)

	var got payments.SubscriptionParams
	f.provider.createSubscription = func(params payments.SubscriptionParams) (*payments.SubscriptionResult, error) {
		got = params
		return &payments.SubscriptionResult{
			ProviderSubscriptionID: "sub_test",
			ProviderPaymentID:      "pi_test",
			ClientSecret:           "pi_test_secret",
		}, nil
	}

	intent, err := f.svc.CreateSubscription(context.Background(), SubscriptionInput{
		ProfileID: profileID,
		TierID:    tier.ID,
		Cycle:     enums.BillingCycleYearly,
		Email:     "fan@example.com",
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if got.AmountCents != 5000 {
		t.Fatalf("charged %d, want yearly price 5000", got.AmountCents)
	}
	if got.Cycle != enums.BillingCycleYearly {
		t.Fatalf("cycle = %q, want yearly", got.Cycle)
	}
	if intent.PaymentSecret != "pi_test_secret" {
		t.Fatalf("payment secret = %q", intent.PaymentSecret)
	}

	var stored models.Subscription
	if err := f.db.First(&stored, "id = ?", intent.Subscription.ID).Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	if stored.Status != enums.SubscriptionStatusIncomplete {
		t.Fatalf("status = %q, want incomplete", stored.Status)
	}
	if stored.ProviderPaymentID == nil || *stored.ProviderPaymentID != "pi_test" {
		t.Fatalf("provider payment id not bound")
	}
}

func TestCreateSubscriptionCustomAmount(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()
	tier := seedTier(t, f.db, profileID, true)

	intent, err := f.svc.CreateSubscription(context.Background(), SubscriptionInput{
		ProfileID:   profileID,
		TierID:      tier.ID,
		Cycle:       enums.BillingCycleMonthly,
		AmountCents: 1500,
		Email:       "fan@example.com",
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if intent.Subscription.AmountCents != 1500 {
		t.Fatalf("amount = %d, want 1500", intent.Subscription.AmountCents)
	}
}

func TestCreateSubscriptionCustomAmountRejected(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()
	fixed := seedTier(t, f.db, profileID, false)
	flexible := seedTier(t, f.db, profileID, true)

	cases := []struct {
		name   string
		tierID uuid.UUID
		amount int64
	}{
		{"tier disallows custom amounts", fixed.ID, 1500},
		{"below tier price", flexible.ID, 300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateSubscription(context.Background(), SubscriptionInput{
				ProfileID:   profileID,
				TierID:      tc.tierID,
				Cycle:       enums.BillingCycleMonthly,
				AmountCents: tc.amount,
				Email:       "fan@example.com",
			})
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("error = %v, want validation", err)
			}
		})
	}
}

func TestCreateSubscriptionUnknownTier(t *testing.T) {
	f := newFixture(t)
	tier := seedTier(t, f.db, uuid.New(), false)

	// Tier exists but belongs to a different profile.
	_, err := f.svc.CreateSubscription(context.Background(), SubscriptionInput{
		ProfileID: uuid.New(),
		TierID:    tier.ID,
		Cycle:     enums.BillingCycleMonthly,
		Email:     "fan@example.com",
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestFinalizeActivatesOnce(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()
	tier := seedTier(t, f.db, profileID, false)

	intent, err := f.svc.CreateSubscription(context.Background(), SubscriptionInput{
		ProfileID: profileID,
		TierID:    tier.ID,
		Cycle:     enums.BillingCycleMonthly,
		Email:     "fan@example.com",
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	f.provider.getIntent = func(paymentID string) (*payments.IntentStatus, error) {
		return &payments.IntentStatus{
			ProviderPaymentID: paymentID,
			State:             payments.IntentStateSucceeded,
			AmountCents:       500,
			Currency:          "usd",
		}, nil
	}

	input := FinalizeInput{
		PaymentID:    intent.PaymentID,
		ProviderName: enums.PaymentProviderStripe,
		ProfileID:    profileID,
	}
	sub, err := f.svc.Finalize(context.Background(), input)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if sub.Status != enums.SubscriptionStatusActive {
		t.Fatalf("status = %q, want active", sub.Status)
	}
	if sub.ActivatedAt == nil {
		t.Fatal("activated_at not set")
	}
	if got := outboxCount(t, f.db, sub.ID); got != 1 {
		t.Fatalf("activation events = %d, want 1", got)
	}

	// A repeated call sees the active row and does not re-activate.
	again, err := f.svc.Finalize(context.Background(), input)
	if err != nil {
		t.Fatalf("repeat finalize: %v", err)
	}
	if again.Status != enums.SubscriptionStatusActive {
		t.Fatalf("repeat status = %q", again.Status)
	}
	if got := outboxCount(t, f.db, sub.ID); got != 1 {
		t.Fatalf("activation events after repeat = %d, want 1", got)
	}
}

func TestFinalizePendingPayment(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()
	tier := seedTier(t, f.db, profileID, false)

	intent, err := f.svc.CreateSubscription(context.Background(), SubscriptionInput{
		ProfileID: profileID,
		TierID:    tier.ID,
		Cycle:     enums.BillingCycleMonthly,
		Email:     "fan@example.com",
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	f.provider.getIntent = func(paymentID string) (*payments.IntentStatus, error) {
		return &payments.IntentStatus{ProviderPaymentID: paymentID, State: payments.IntentStatePending}, nil
	}

	_, err = f.svc.Finalize(context.Background(), FinalizeInput{
		PaymentID:    intent.PaymentID,
		ProviderName: enums.PaymentProviderStripe,
		ProfileID:    profileID,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("error = %v, want state conflict", err)
	}
	if len(f.guard.held) != 0 {
		t.Fatal("guard consumed for a pending payment")
	}
}

func TestFinalizeAmountMismatch(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()
	tier := seedTier(t, f.db, profileID, false)

	intent, err := f.svc.CreateSubscription(context.Background(), SubscriptionInput{
		ProfileID: profileID,
		TierID:    tier.ID,
		Cycle:     enums.BillingCycleMonthly,
		Email:     "fan@example.com",
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	f.provider.getIntent = func(paymentID string) (*payments.IntentStatus, error) {
		return &payments.IntentStatus{
			ProviderPaymentID: paymentID,
			State:             payments.IntentStateSucceeded,
			AmountCents:       100,
		}, nil
	}

	_, err = f.svc.Finalize(context.Background(), FinalizeInput{
		PaymentID:    intent.PaymentID,
		ProviderName: enums.PaymentProviderStripe,
		ProfileID:    profileID,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("error = %v, want conflict", err)
	}
}

func TestFinalizeFailedPaymentCancels(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()
	tier := seedTier(t, f.db, profileID, false)

	intent, err := f.svc.CreateSubscription(context.Background(), SubscriptionInput{
		ProfileID: profileID,
		TierID:    tier.ID,
		Cycle:     enums.BillingCycleMonthly,
		Email:     "fan@example.com",
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	f.provider.getIntent = func(paymentID string) (*payments.IntentStatus, error) {
		return &payments.IntentStatus{ProviderPaymentID: paymentID, State: payments.IntentStateFailed}, nil
	}

	sub, err := f.svc.Finalize(context.Background(), FinalizeInput{
		PaymentID:    intent.PaymentID,
		ProviderName: enums.PaymentProviderStripe,
		ProfileID:    profileID,
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if sub.Status != enums.SubscriptionStatusCancelled {
		t.Fatalf("status = %q, want cancelled", sub.Status)
	}
	if sub.CancelledAt == nil {
		t.Fatal("cancelled_at not set")
	}
	if got := outboxCount(t, f.db, sub.ID); got != 0 {
		t.Fatalf("activation events = %d, want 0", got)
	}
}

func TestFinalizeWrongProfile(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()
	tier := seedTier(t, f.db, profileID, false)

	intent, err := f.svc.CreateSubscription(context.Background(), SubscriptionInput{
		ProfileID: profileID,
		TierID:    tier.ID,
		Cycle:     enums.BillingCycleMonthly,
		Email:     "fan@example.com",
	})
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	_, err = f.svc.Finalize(context.Background(), FinalizeInput{
		PaymentID:    intent.PaymentID,
		ProviderName: enums.PaymentProviderStripe,
		ProfileID:    uuid.New(),
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestIssueIntentFromSession(t *testing.T) {
	f := newFixture(t)
	profileID := uuid.New()
	tier := seedTier(t, f.db, profileID, true)

	cycle := enums.BillingCycleMonthly
	amount := int64(1000)
	tierID := tier.ID
	sess := &checkout.Session{
		ProfileID:    profileID,
		TierID:       &tierID,
		BillingCycle: &cycle,
		AmountCents:  &amount,
		Email:        "fan@example.com",
	}

	intent, err := f.svc.IssueIntent(context.Background(), sess)
	if err != nil {
		t.Fatalf("issue intent: %v", err)
	}
	if intent.TotalCents != 1000 {
		t.Fatalf("total = %d, want 1000", intent.TotalCents)
	}
	if intent.OrderID == uuid.Nil {
		t.Fatal("subscription id not bound to intent")
	}
	if intent.PaymentID == "" || intent.PaymentSecret == "" {
		t.Fatal("payment handle missing")
	}
}
