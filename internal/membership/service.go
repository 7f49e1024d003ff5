package membership

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dannyvalenz/fanlink-backend/internal/checkout"
	"github.com/dannyvalenz/fanlink-backend/internal/payments"
	"github.com/dannyvalenz/fanlink-backend/pkg/db/models"
	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
	"github.com/dannyvalenz/fanlink-backend/pkg/metrics"
	"github.com/dannyvalenz/fanlink-backend/pkg/outbox"
	"github.com/dannyvalenz/fanlink-backend/pkg/outbox/payloads"
)

// SubscriptionInput describes a membership purchase. AmountCents of 0 means
// the tier's listed price for the chosen cycle.
type SubscriptionInput struct {
	ProfileID   uuid.UUID
	TierID      uuid.UUID
	Cycle       enums.BillingCycle
	AmountCents int64
	Email       string
}

// SubscriptionIntent carries the new subscription plus its payment handle.
type SubscriptionIntent struct {
	Subscription  *models.Subscription
	PaymentID     string
	PaymentSecret string
}

// FinalizeInput identifies the first subscription payment to reconcile.
type FinalizeInput struct {
	PaymentID    string
	ProviderName enums.PaymentProvider
	ProfileID    uuid.UUID
}

// Service owns membership tiers and subscriptions. It implements the
// membership-flow intent issuer for the checkout wizard.
type Service interface {
	checkout.IntentIssuer
	ListTiers(ctx context.Context, profileID uuid.UUID) ([]models.MembershipTier, error)
	CreateSubscription(ctx context.Context, input SubscriptionInput) (*SubscriptionIntent, error)
	// Finalize reconciles the first payment exactly once and activates the
	// membership when it succeeded.
	Finalize(ctx context.Context, input FinalizeInput) (*models.Subscription, error)
	// ApplyPaymentResult settles the subscription bound to a provider
	// payment. Callers are expected to have verified the result already.
	ApplyPaymentResult(ctx context.Context, providerPaymentID string, state payments.IntentState) (*models.Subscription, error)
}

type finalizeGuard interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	FinalizeGuardKey(paymentID string) string
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Providers         *payments.Registry
	Outbox            *outbox.Service
	Guard             finalizeGuard
	GuardTTL          time.Duration
	Logger            *logger.Logger
	Metrics           *metrics.CheckoutMetrics
}

type service struct {
	repo      Repository
	txRunner  txRunner
	providers *payments.Registry
	outbox    *outbox.Service
	guard     finalizeGuard
	guardTTL  time.Duration
	logg      *logger.Logger
	metrics   *metrics.CheckoutMetrics
}

// NewService validates the dependency set and builds the membership service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "membership repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Providers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment providers required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox service required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "finalize guard required")
	}
	if params.GuardTTL <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "finalize guard ttl must be positive")
	}
	return &service{
		repo:      params.Repo,
		txRunner:  params.TransactionRunner,
		providers: params.Providers,
		outbox:    params.Outbox,
		guard:     params.Guard,
		guardTTL:  params.GuardTTL,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

func (s *service) ListTiers(ctx context.Context, profileID uuid.UUID) ([]models.MembershipTier, error) {
	if profileID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile id is required")
	}
	tiers, err := s.repo.ListTiers(ctx, profileID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list membership tiers")
	}
	return tiers, nil
}

// IssueIntent is the membership-flow issuer. The wizard session carries the
// tier, cycle, and optional custom amount collected at the details stage.
func (s *service) IssueIntent(ctx context.Context, sess *checkout.Session) (*checkout.Intent, error) {
	if sess == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session required")
	}
	if sess.TierID == nil || sess.BillingCycle == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a tier and billing cycle are required")
	}
	input := SubscriptionInput{
		ProfileID: sess.ProfileID,
		TierID:    *sess.TierID,
		Cycle:     *sess.BillingCycle,
		Email:     sess.Email,
	}
	if sess.AmountCents != nil {
		input.AmountCents = *sess.AmountCents
	}
	intent, err := s.CreateSubscription(ctx, input)
	if err != nil {
		return nil, err
	}
	return &checkout.Intent{
		OrderID:       intent.Subscription.ID,
		PaymentID:     intent.PaymentID,
		PaymentSecret: intent.PaymentSecret,
		TotalCents:    intent.Subscription.AmountCents,
		SubTotalCents: intent.Subscription.AmountCents,
	}, nil
}

func (s *service) CreateSubscription(ctx context.Context, input SubscriptionInput) (*SubscriptionIntent, error) {
	if input.ProfileID == uuid.Nil || input.TierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile id and tier id are required")
	}
	if !input.Cycle.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a billing cycle is required")
	}
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "an email is required")
	}

	tier, err := s.repo.FindTierByID(ctx, input.TierID, input.ProfileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership tier not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership tier")
	}

	amount, err := resolveAmount(tier, input.Cycle, input.AmountCents)
	if err != nil {
		return nil, err
	}

	provider, err := s.providers.Get(enums.PaymentProviderStripe)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	result, err := provider.CreateSubscription(ctx, payments.SubscriptionParams{
		AmountCents: amount,
		Currency:    "usd",
		Cycle:       input.Cycle,
		Email:       email,
		Metadata: map[string]string{
			"tierId":    tier.ID.String(),
			"profileId": input.ProfileID.String(),
		},
	})
	if s.metrics != nil {
		s.metrics.ObserveProviderCall(provider.Name().String(), "create_subscription", time.Since(started))
	}
	if err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		ProfileID:              input.ProfileID,
		TierID:                 tier.ID,
		Email:                  email,
		BillingCycle:           input.Cycle,
		AmountCents:            amount,
		Currency:               "usd",
		Status:                 enums.SubscriptionStatusIncomplete,
		PaymentProvider:        provider.Name(),
		ProviderSubscriptionID: &result.ProviderSubscriptionID,
	}
	if result.ProviderPaymentID != "" {
		sub.ProviderPaymentID = &result.ProviderPaymentID
	}
	if _, err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist subscription")
	}

	if s.metrics != nil {
		s.metrics.IncOrderCreated(enums.FlowKindMembership.String(), provider.Name().String())
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"subscription_id": sub.ID.String(),
			"tier_id":         tier.ID.String(),
			"cycle":           input.Cycle,
			"amount":          amount,
		})
		s.logg.Info(logCtx, "subscription intent issued")
	}

	return &SubscriptionIntent{
		Subscription:  sub,
		PaymentID:     result.ProviderPaymentID,
		PaymentSecret: result.ClientSecret,
	}, nil
}

func (s *service) Finalize(ctx context.Context, input FinalizeInput) (*models.Subscription, error) {
	if strings.TrimSpace(input.PaymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	sub, err := s.repo.FindSubscriptionByProviderPaymentID(ctx, input.PaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no subscription for payment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub.ProfileID != input.ProfileID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no subscription for payment")
	}
	if sub.Status != enums.SubscriptionStatusIncomplete {
		return sub, nil
	}

	provider, err := s.providers.Get(input.ProviderName)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	status, err := provider.GetIntent(ctx, input.PaymentID)
	if s.metrics != nil {
		s.metrics.ObserveProviderCall(provider.Name().String(), "get_intent", time.Since(started))
	}
	if err != nil {
		return nil, err
	}

	if status.State == payments.IntentStatePending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "the payment is still processing").
			WithDetails(map[string]any{"paymentId": input.PaymentID})
	}
	if status.State == payments.IntentStateSucceeded && status.AmountCents != sub.AmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "paid amount does not match the subscription").
			WithDetails(map[string]any{"expected": sub.AmountCents, "paid": status.AmountCents})
	}

	return s.settleOnce(ctx, sub, input.PaymentID, status.State, provider.Name().String())
}

func (s *service) ApplyPaymentResult(ctx context.Context, providerPaymentID string, state payments.IntentState) (*models.Subscription, error) {
	if state == payments.IntentStatePending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a pending payment cannot settle a subscription")
	}
	sub, err := s.repo.FindSubscriptionByProviderPaymentID(ctx, providerPaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no subscription for payment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub.Status != enums.SubscriptionStatusIncomplete {
		return sub, nil
	}
	return s.settleOnce(ctx, sub, providerPaymentID, state, sub.PaymentProvider.String())
}

// settleOnce moves an incomplete subscription to its terminal status. The
// redis guard keeps concurrent finalize calls and webhook deliveries from
// settling the same payment twice.
func (s *service) settleOnce(ctx context.Context, sub *models.Subscription, paymentID string, state payments.IntentState, providerLabel string) (*models.Subscription, error) {
	acquired, err := s.guard.SetNX(ctx, s.guard.FinalizeGuardKey(paymentID), sub.ID.String(), s.guardTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire finalize guard")
	}
	if !acquired {
		return s.repo.FindSubscriptionByProviderPaymentID(ctx, paymentID)
	}

	now := time.Now().UTC()
	if state == payments.IntentStateFailed {
		if err := s.repo.UpdateSubscriptionFields(ctx, sub.ID, map[string]any{
			"status":       enums.SubscriptionStatusCancelled,
			"cancelled_at": now,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel subscription")
		}
		sub.Status = enums.SubscriptionStatusCancelled
		sub.CancelledAt = &now
		if s.metrics != nil {
			s.metrics.IncFinalize(providerLabel, sub.Status.String())
		}
		return sub, nil
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if updateErr := s.repo.WithTx(tx).UpdateSubscriptionFields(ctx, sub.ID, map[string]any{
			"status":       enums.SubscriptionStatusActive,
			"activated_at": now,
		}); updateErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, updateErr, "activate subscription")
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventSubscriptionActivated,
			AggregateType: enums.OutboxAggregateSubscription,
			AggregateID:   sub.ID,
			Buyer:         &outbox.BuyerRef{Email: sub.Email},
			Data: payloads.SubscriptionActivatedEvent{
				SubscriptionID: sub.ID,
				ProfileID:      sub.ProfileID,
				TierID:         sub.TierID,
				BillingCycle:   sub.BillingCycle,
				AmountCents:    sub.AmountCents,
				ActivatedAt:    now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	sub.Status = enums.SubscriptionStatusActive
	sub.ActivatedAt = &now

	if s.metrics != nil {
		s.metrics.IncFinalize(providerLabel, sub.Status.String())
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"subscription_id": sub.ID.String(),
			"status":          sub.Status,
		})
		s.logg.Info(logCtx, "membership activated")
	}
	return sub, nil
}

// resolveAmount applies the custom-amount policy: a custom amount requires
// the tier to allow it and must be at least the listed price.
func resolveAmount(tier *models.MembershipTier, cycle enums.BillingCycle, requested int64) (int64, error) {
	base := tier.MonthlyPriceCents
	if cycle == enums.BillingCycleYearly {
		base = tier.YearlyPriceCents
	}
	if requested <= 0 || requested == base {
		return base, nil
	}
	if !tier.AllowCustomAmount {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "this tier does not accept custom amounts")
	}
	if requested < base {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "a custom amount must be at least the tier price").
			WithDetails(map[string]any{"minimum": base, "received": requested})
	}
	return requested, nil
}
