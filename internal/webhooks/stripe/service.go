package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/dannyvalenz/fanlink-backend/internal/payments"
	"github.com/dannyvalenz/fanlink-backend/pkg/db/models"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
)

const dedupeScope = "stripe_webhook"

type orderSettler interface {
	ApplyPaymentResult(ctx context.Context, providerPaymentID string, state payments.IntentState, failureReason string) (*models.Order, error)
}

type subscriptionSettler interface {
	ApplyPaymentResult(ctx context.Context, providerPaymentID string, state payments.IntentState) (*models.Subscription, error)
}

type dedupeStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

type ServiceParams struct {
	Orders      orderSettler
	Memberships subscriptionSettler
	Dedupe      dedupeStore
	DedupeTTL   time.Duration
	Logger      *logger.Logger
}

// Service turns verified Stripe events into order and subscription state
// changes. Signature verification happens at the transport layer before
// events reach it.
type Service struct {
	orders      orderSettler
	memberships subscriptionSettler
	dedupe      dedupeStore
	dedupeTTL   time.Duration
	logg        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders settler required")
	}
	if params.Memberships == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "memberships settler required")
	}
	if params.Dedupe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dedupe store required")
	}
	if params.DedupeTTL <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dedupe ttl must be positive")
	}
	return &Service{
		orders:      params.Orders,
		memberships: params.Memberships,
		dedupe:      params.Dedupe,
		dedupeTTL:   params.DedupeTTL,
		logg:        params.Logger,
	}, nil
}

// HandleEvent processes one delivery. Stripe retries on error, so the
// handler stays idempotent: repeated event IDs are dropped and settlement
// is guarded downstream.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	fresh, err := s.dedupe.SetNX(ctx, s.dedupe.IdempotencyKey(dedupeScope, event.ID), 1, s.dedupeTTL)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dedupe stripe event")
	}
	if !fresh {
		return nil
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		return s.settlePayment(ctx, event, payments.IntentStateSucceeded)
	case stripe.EventTypePaymentIntentPaymentFailed:
		return s.settlePayment(ctx, event, payments.IntentStateFailed)
	default:
		return nil
	}
}

func (s *Service) settlePayment(ctx context.Context, event *stripe.Event, state payments.IntentState) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
	}
	if intent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}

	reason := ""
	if state == payments.IntentStateFailed && intent.LastPaymentError != nil {
		reason = intent.LastPaymentError.Msg
	}

	order, err := s.orders.ApplyPaymentResult(ctx, intent.ID, state, reason)
	if err == nil {
		s.logSettled(ctx, event, "order", order.ID.String(), order.Status.String())
		return nil
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		return err
	}

	sub, err := s.memberships.ApplyPaymentResult(ctx, intent.ID, state)
	if err == nil {
		s.logSettled(ctx, event, "subscription", sub.ID.String(), sub.Status.String())
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
		// Payments created outside this system, e.g. through the dashboard.
		// Acknowledge so Stripe stops retrying.
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"event_id":   event.ID,
				"payment_id": intent.ID,
			})
			s.logg.Warn(logCtx, "stripe payment has no matching order or subscription")
		}
		return nil
	}
	return err
}

func (s *Service) logSettled(ctx context.Context, event *stripe.Event, kind, id, status string) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": event.Type,
		kind + "_id": id,
		"status":     status,
	})
	s.logg.Info(logCtx, "stripe webhook settled "+kind)
}
