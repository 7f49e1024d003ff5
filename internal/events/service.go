package events

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dannyvalenz/fanlink-backend/internal/checkout"
	"github.com/dannyvalenz/fanlink-backend/internal/orders"
	"github.com/dannyvalenz/fanlink-backend/internal/payments"
	"github.com/dannyvalenz/fanlink-backend/pkg/db/models"
	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
	"github.com/dannyvalenz/fanlink-backend/pkg/metrics"
	"github.com/dannyvalenz/fanlink-backend/pkg/outbox"
	"github.com/dannyvalenz/fanlink-backend/pkg/outbox/payloads"
)

// CheckoutInput is a direct ticket purchase request.
type CheckoutInput struct {
	EventID   uuid.UUID
	ProfileID uuid.UUID
	SessionID string
	UserID    *uuid.UUID
	Selection map[string]int
	Email     string
	FirstName string
	LastName  string
}

// Service reads the event catalog and creates ticket orders. It implements
// the tickets-flow intent issuer for the checkout wizard.
type Service interface {
	checkout.IntentIssuer
	GetEvent(ctx context.Context, eventID, profileID uuid.UUID) (*models.Event, error)
	// Checkout reserves the selected tickets, snapshots them into an order,
	// and prepares a provider intent for the total.
	Checkout(ctx context.Context, input CheckoutInput) (*checkout.Intent, error)
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Repo              Repository
	OrdersRepo        orders.Repository
	TransactionRunner txRunner
	Providers         *payments.Registry
	Outbox            *outbox.Service
	Logger            *logger.Logger
	Metrics           *metrics.CheckoutMetrics
}

type service struct {
	repo       Repository
	ordersRepo orders.Repository
	txRunner   txRunner
	providers  *payments.Registry
	outbox     *outbox.Service
	logg       *logger.Logger
	metrics    *metrics.CheckoutMetrics
}

// NewService validates the dependency set and builds the events service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "events repo required")
	}
	if params.OrdersRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
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
	return &service{
		repo:       params.Repo,
		ordersRepo: params.OrdersRepo,
		txRunner:   params.TransactionRunner,
		providers:  params.Providers,
		outbox:     params.Outbox,
		logg:       params.Logger,
		metrics:    params.Metrics,
	}, nil
}

func (s *service) GetEvent(ctx context.Context, eventID, profileID uuid.UUID) (*models.Event, error) {
	if eventID == uuid.Nil || profileID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id and profile id are required")
	}
	event, err := s.repo.FindEventByID(ctx, eventID, profileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load event")
	}
	return event, nil
}

// IssueIntent is the tickets-flow issuer: the wizard session carries the
// selection and buyer identity collected at earlier stages.
func (s *service) IssueIntent(ctx context.Context, sess *checkout.Session) (*checkout.Intent, error) {
	if sess == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session required")
	}
	if sess.EventID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "the session has no event bound")
	}
	return s.createTicketOrder(ctx, CheckoutInput{
		EventID:   *sess.EventID,
		ProfileID: sess.ProfileID,
		SessionID: sess.SessionID,
		Selection: sess.TicketSelection,
		Email:     sess.Email,
		FirstName: sess.FirstName,
		LastName:  sess.LastName,
	})
}

func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*checkout.Intent, error) {
	return s.createTicketOrder(ctx, input)
}

type ticketLine struct {
	ticketTypeID uuid.UUID
	name         string
	priceCents   int64
	qty          int
}

func (s *service) createTicketOrder(ctx context.Context, input CheckoutInput) (*checkout.Intent, error) {
	if input.EventID == uuid.Nil || input.ProfileID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id and profile id are required")
	}
	if strings.TrimSpace(input.SessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	lines, err := s.resolveSelection(ctx, input.EventID, input.Selection)
	if err != nil {
		return nil, err
	}

	var total int64
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		lineTotal := line.priceCents * int64(line.qty)
		total += lineTotal
		ticketTypeID := line.ticketTypeID
		items = append(items, models.OrderItem{
			TicketTypeID:   &ticketTypeID,
			Title:          line.name,
			UnitPriceCents: line.priceCents,
			Quantity:       line.qty,
			TotalCents:     lineTotal,
		})
	}

	eventID := input.EventID
	order := &models.Order{
		ProfileID:       input.ProfileID,
		SessionID:       input.SessionID,
		UserID:          input.UserID,
		EventID:         &eventID,
		Kind:            enums.FlowKindTickets,
		Email:           strings.TrimSpace(input.Email),
		FirstName:       strings.TrimSpace(input.FirstName),
		LastName:        strings.TrimSpace(input.LastName),
		Status:          enums.OrderStatusInitiatedPayment,
		Currency:        "usd",
		SubTotalCents:   total,
		TotalCents:      total,
		PaymentProvider: enums.PaymentProviderStripe,
		Items:           items,
	}

	// One transaction covers the reservation, the order snapshot, and the
	// order.created event: an order never exists without its tickets held.
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, line := range lines {
			reserved, reserveErr := repo.ReserveTickets(ctx, line.ticketTypeID, line.qty)
			if reserveErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, reserveErr, "reserve tickets")
			}
			if !reserved {
				return pkgerrors.New(pkgerrors.CodeConflict, "not enough tickets remaining").
					WithDetails(map[string]any{"ticketTypeId": line.ticketTypeID.String(), "requested": line.qty})
			}
		}
		if _, createErr := s.ordersRepo.WithTx(tx).Create(ctx, order); createErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "persist ticket order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventOrderCreated,
			AggregateType: enums.OutboxAggregateOrder,
			AggregateID:   order.ID,
			Buyer:         &outbox.BuyerRef{Email: order.Email},
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

	provider, err := s.providers.Get(order.PaymentProvider)
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
			"eventId":   input.EventID.String(),
		},
	})
	if s.metrics != nil {
		s.metrics.ObserveProviderCall(provider.Name().String(), "create_intent", time.Since(started))
	}
	if err != nil {
		s.rollbackReservation(ctx, order, lines, err)
		return nil, err
	}

	if err := s.ordersRepo.UpdateFields(ctx, order.ID, map[string]any{
		"provider_payment_id": result.ProviderPaymentID,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bind provider payment id")
	}

	if s.metrics != nil {
		s.metrics.IncOrderCreated(order.Kind.String(), provider.Name().String())
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"event_id": input.EventID.String(),
			"total":    order.TotalCents,
		})
		s.logg.Info(logCtx, "ticket order intent issued")
	}

	return &checkout.Intent{
		OrderID:       order.ID,
		PaymentID:     result.ProviderPaymentID,
		PaymentSecret: result.ClientSecret,
		TotalCents:    order.TotalCents,
		SubTotalCents: order.SubTotalCents,
	}, nil
}

// rollbackReservation releases the tickets and marks the order failed after
// the provider refused the intent.
func (s *service) rollbackReservation(ctx context.Context, order *models.Order, lines []ticketLine, cause error) {
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, line := range lines {
			if releaseErr := repo.ReleaseTickets(ctx, line.ticketTypeID, line.qty); releaseErr != nil {
				return releaseErr
			}
		}
		return s.ordersRepo.WithTx(tx).UpdateFields(ctx, order.ID, map[string]any{
			"status":         enums.OrderStatusFailed,
			"failure_reason": cause.Error(),
		})
	})
	if err != nil && s.logg != nil {
		s.logg.Error(ctx, "release tickets after intent failure", err)
	}
}

func (s *service) resolveSelection(ctx context.Context, eventID uuid.UUID, selection map[string]int) ([]ticketLine, error) {
	if len(selection) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "select at least one ticket")
	}

	ids := make([]uuid.UUID, 0, len(selection))
	qtyByID := make(map[uuid.UUID]int, len(selection))
	for raw, qty := range selection {
		if qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket quantities must be positive")
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ticket id").
				WithDetails(map[string]any{"ticketTypeId": raw})
		}
		ids = append(ids, id)
		qtyByID[id] = qty
	}

	ticketTypes, err := s.repo.FindTicketTypes(ctx, eventID, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ticket types")
	}
	if len(ticketTypes) != len(ids) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "one or more ticket types do not exist for this event")
	}

	lines := make([]ticketLine, 0, len(ticketTypes))
	for _, tt := range ticketTypes {
		lines = append(lines, ticketLine{
			ticketTypeID: tt.ID,
			name:         tt.Name,
			priceCents:   tt.PriceCents,
			qty:          qtyByID[tt.ID],
		})
	}
	// Reserve in a stable order so concurrent checkouts cannot deadlock.
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].ticketTypeID.String() < lines[j].ticketTypeID.String()
	})
	return lines, nil
}
