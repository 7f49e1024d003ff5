package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dannyvalenz/fanlink-backend/internal/cart"
	"github.com/dannyvalenz/fanlink-backend/internal/checkout"
	"github.com/dannyvalenz/fanlink-backend/internal/payments"
	"github.com/dannyvalenz/fanlink-backend/pkg/db/models"
	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
	"github.com/dannyvalenz/fanlink-backend/pkg/metrics"
	"github.com/dannyvalenz/fanlink-backend/pkg/outbox"
	"github.com/dannyvalenz/fanlink-backend/pkg/outbox/payloads"
	"github.com/dannyvalenz/fanlink-backend/pkg/pagination"
)

const defaultCurrency = "usd"

// StartPaymentInput is the generic cart payment request: the session cart is
// snapshotted into an order and a provider intent is prepared for it.
type StartPaymentInput struct {
	SessionID   string
	ProfileID   uuid.UUID
	UserID      *uuid.UUID
	Email       string
	FirstName   string
	LastName    string
	AmountCents int64
}

// FinalizeInput identifies the payment to reconcile with its stored order.
type FinalizeInput struct {
	PaymentID    string
	ProviderName enums.PaymentProvider
	ProfileID    uuid.UUID
	OrderID      uuid.UUID
	SessionID    string
}

// Service owns order creation, finalization, and history reads. It also
// implements the cart-flow intent issuer for the checkout wizard.
type Service interface {
	checkout.IntentIssuer
	StartPayment(ctx context.Context, input StartPaymentInput) (*checkout.Intent, error)
	// Finalize fetches the authoritative payment result and applies it to the
	// stored order exactly once. Repeat calls return the already-final order.
	Finalize(ctx context.Context, input FinalizeInput) (*models.Order, error)
	// ApplyPaymentResult transitions the order bound to a provider payment.
	// Used by webhook handlers, which carry their own delivery dedupe.
	ApplyPaymentResult(ctx context.Context, providerPaymentID string, state payments.IntentState, failureReason string) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	List(ctx context.Context, profileID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Providers         *payments.Registry
	Cart              cartAccess
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
	cart      cartAccess
	outbox    *outbox.Service
	guard     finalizeGuard
	guardTTL  time.Duration
	logg      *logger.Logger
	metrics   *metrics.CheckoutMetrics
}

// NewService validates the dependency set and builds the orders service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Providers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment providers required")
	}
	if params.Cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart access required")
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
		cart:      params.Cart,
		outbox:    params.Outbox,
		guard:     params.Guard,
		guardTTL:  params.GuardTTL,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// IssueIntent snapshots the session cart into an order and prepares a Stripe
// intent for it. Called by the checkout wizard when a cart session enters the
// payment stage.
func (s *service) IssueIntent(ctx context.Context, sess *checkout.Session) (*checkout.Intent, error) {
	if sess == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session required")
	}
	return s.createCartOrder(ctx, sess.SessionID, sess.ProfileID, nil, sess.Email, sess.FirstName, sess.LastName, 0)
}

func (s *service) StartPayment(ctx context.Context, input StartPaymentInput) (*checkout.Intent, error) {
	if strings.TrimSpace(input.SessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if input.ProfileID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile id is required")
	}
	return s.createCartOrder(ctx, input.SessionID, input.ProfileID, input.UserID, input.Email, input.FirstName, input.LastName, input.AmountCents)
}

// createCartOrder is the shared cart-snapshot path. expectedAmount of 0 skips
// the client-total cross-check.
func (s *service) createCartOrder(ctx context.Context, sessionID string, profileID uuid.UUID, userID *uuid.UUID, email, firstName, lastName string, expectedAmount int64) (*checkout.Intent, error) {
	items, err := s.cart.Items(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "the cart is empty")
	}

	subtotal := cart.Subtotal(items)
	total := subtotal
	if expectedAmount > 0 && expectedAmount != total {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "submitted amount does not match the cart total").
			WithDetails(map[string]any{"expected": total, "received": expectedAmount})
	}

	order := &models.Order{
		ProfileID:       profileID,
		SessionID:       sessionID,
		UserID:          userID,
		Kind:            enums.FlowKindCart,
		Email:           strings.TrimSpace(email),
		FirstName:       strings.TrimSpace(firstName),
		LastName:        strings.TrimSpace(lastName),
		Status:          enums.OrderStatusInitiatedPayment,
		Currency:        defaultCurrency,
		SubTotalCents:   subtotal,
		TotalCents:      total,
		PaymentProvider: enums.PaymentProviderStripe,
		Items:           snapshotItems(items),
	}

	return s.createOrderWithIntent(ctx, order)
}

func (s *service) createOrderWithIntent(ctx context.Context, order *models.Order) (*checkout.Intent, error) {
	provider, err := s.providers.Get(order.PaymentProvider)
	if err != nil {
		return nil, err
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if _, createErr := s.repo.WithTx(tx).Create(ctx, order); createErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "persist order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventOrderCreated,
			AggregateType: enums.OutboxAggregateOrder,
			AggregateID:   order.ID,
			Buyer:         buyerRef(order),
			Data: payloads.OrderCreatedEvent{
				OrderID:    order.ID,
				ProfileID:  order.ProfileID,
				Kind:       order.Kind,
				TotalCents: order.TotalCents,
				Currency:   order.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := provider.CreateIntent(ctx, payments.CreateIntentParams{
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Metadata: map[string]string{
			"orderId":   order.ID.String(),
			"profileId": order.ProfileID.String(),
		},
	})
	if s.metrics != nil {
		s.metrics.ObserveProviderCall(provider.Name().String(), "create_intent", time.Since(started))
	}
	if err != nil {
		reason := err.Error()
		if updateErr := s.repo.UpdateFields(ctx, order.ID, map[string]any{
			"status":         enums.OrderStatusFailed,
			"failure_reason": reason,
		}); updateErr != nil && s.logg != nil {
			s.logg.Error(ctx, "mark order failed after intent error", updateErr)
		}
		return nil, err
	}

	if err := s.repo.UpdateFields(ctx, order.ID, map[string]any{
		"provider_payment_id": result.ProviderPaymentID,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bind provider payment id")
	}

	if s.metrics != nil {
		s.metrics.IncOrderCreated(order.Kind.String(), provider.Name().String())
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":   order.ID.String(),
			"kind":       order.Kind,
			"provider":   provider.Name(),
			"payment_id": result.ProviderPaymentID,
		})
		s.logg.Info(logCtx, "order intent issued")
	}

	return &checkout.Intent{
		OrderID:       order.ID,
		PaymentID:     result.ProviderPaymentID,
		PaymentSecret: result.ClientSecret,
		TotalCents:    order.TotalCents,
		SubTotalCents: order.SubTotalCents,
		ShippingCents: order.ShippingCostCents,
	}, nil
}

func (s *service) Finalize(ctx context.Context, input FinalizeInput) (*models.Order, error) {
	if strings.TrimSpace(input.PaymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	order, err := s.Get(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.ProfileID != input.ProfileID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.ProviderPaymentID == nil || *order.ProviderPaymentID != input.PaymentID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment does not belong to this order")
	}

	// A settled or failed order is final; repeat finalize calls observe it.
	if order.Status != enums.OrderStatusInitiatedPayment && order.Status != enums.OrderStatusProcessing {
		return order, nil
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
	if status.State == payments.IntentStateSucceeded && status.AmountCents != order.TotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "paid amount does not match the order total").
			WithDetails(map[string]any{"expected": order.TotalCents, "paid": status.AmountCents})
	}

	acquired, err := s.guard.SetNX(ctx, s.guard.FinalizeGuardKey(input.PaymentID), order.ID.String(), s.guardTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire finalize guard")
	}
	if !acquired {
		// Another finalize won the race; return its outcome.
		return s.Get(ctx, input.OrderID)
	}

	final, err := s.settle(ctx, order, status.State, "")
	if err != nil {
		return nil, err
	}
	s.clearCartIfSettled(ctx, final, input.SessionID)
	return final, nil
}

func (s *service) ApplyPaymentResult(ctx context.Context, providerPaymentID string, state payments.IntentState, failureReason string) (*models.Order, error) {
	if state == payments.IntentStatePending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pending results are not applied")
	}
	order, err := s.repo.FindByProviderPaymentID(ctx, providerPaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by payment")
	}
	if order.Status != enums.OrderStatusInitiatedPayment && order.Status != enums.OrderStatusProcessing {
		return order, nil
	}

	final, err := s.settle(ctx, order, state, failureReason)
	if err != nil {
		return nil, err
	}
	s.clearCartIfSettled(ctx, final, final.SessionID)
	return final, nil
}

// settle applies the payment outcome inside one transaction together with its
// outbox event.
func (s *service) settle(ctx context.Context, order *models.Order, state payments.IntentState, failureReason string) (*models.Order, error) {
	target := enums.OrderStatusPaid
	if state == payments.IntentStateFailed {
		target = enums.OrderStatusPaymentFailed
	}
	if !order.Status.CanTransition(target) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot move to the requested status").
			WithDetails(map[string]any{"from": order.Status.String(), "to": target.String()})
	}

	now := time.Now().UTC()
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{"status": target}
		if target == enums.OrderStatusPaid {
			updates["paid_at"] = now
		} else if failureReason != "" {
			updates["failure_reason"] = failureReason
		}
		if err := repo.UpdateFields(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		event := outbox.DomainEvent{
			AggregateType: enums.OutboxAggregateOrder,
			AggregateID:   order.ID,
			Buyer:         buyerRef(order),
		}
		if target == enums.OrderStatusPaid {
			event.EventType = enums.OutboxEventOrderPaid
			event.Data = payloads.OrderPaidEvent{
				OrderID:           order.ID,
				ProfileID:         order.ProfileID,
				Kind:              order.Kind,
				TotalCents:        order.TotalCents,
				Currency:          order.Currency,
				PaymentProvider:   order.PaymentProvider,
				ProviderPaymentID: stringValue(order.ProviderPaymentID),
				PaidAt:            now,
			}
		} else {
			event.EventType = enums.OutboxEventOrderPaymentFailed
			event.Data = payloads.OrderPaymentFailedEvent{
				OrderID:         order.ID,
				ProfileID:       order.ProfileID,
				PaymentProvider: order.PaymentProvider,
				FailureReason:   failureReason,
			}
		}
		return s.outbox.EmitIfNotExists(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	order.Status = target
	if target == enums.OrderStatusPaid {
		order.PaidAt = &now
	} else if failureReason != "" {
		order.FailureReason = &failureReason
	}

	if s.metrics != nil {
		s.metrics.IncFinalize(order.PaymentProvider.String(), target.String())
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"status":   target,
		})
		s.logg.Info(logCtx, "order finalized")
	}
	return order, nil
}

// clearCartIfSettled empties the session cart after a settled cart purchase.
// An already-empty cart is untouched, so repeats are harmless.
func (s *service) clearCartIfSettled(ctx context.Context, order *models.Order, sessionID string) {
	if order == nil || !order.Status.IsSettled() || order.Kind != enums.FlowKindCart {
		return
	}
	if strings.TrimSpace(sessionID) == "" {
		sessionID = order.SessionID
	}
	items, err := s.cart.Items(ctx, sessionID)
	if err != nil || len(items) == 0 {
		return
	}
	if err := s.cart.Clear(ctx, sessionID); err != nil && s.logg != nil {
		s.logg.Error(ctx, "clear cart after settle", err)
	}
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, profileID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	if profileID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "profile id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListByProfile(ctx, profileID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func snapshotItems(items []cart.Item) []models.OrderItem {
	snapshot := make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		productID := item.ProductID.String()
		row := models.OrderItem{
			ProductID:        &productID,
			Title:            item.Title,
			UnitPriceCents:   item.PriceCents,
			Quantity:         item.Quantity,
			TotalCents:       item.LineTotalCents(),
			IsGift:           item.IsGift,
			RecipientName:    item.RecipientName,
			RecipientEmail:   item.RecipientEmail,
			RecipientMessage: item.RecipientMessage,
			Color:            item.Color,
			Size:             item.Size,
			DeliveryType:     item.DeliveryType,
		}
		if item.ProductVariantID != nil {
			variantID := item.ProductVariantID.String()
			row.ProductVariantID = &variantID
		}
		snapshot = append(snapshot, row)
	}
	return snapshot
}

func buyerRef(order *models.Order) *outbox.BuyerRef {
	if order == nil {
		return nil
	}
	ref := &outbox.BuyerRef{Email: order.Email}
	if order.UserID != nil {
		ref.UserID = order.UserID.String()
	}
	return ref
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
