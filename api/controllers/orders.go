package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dannyvalenz/fanlink-backend/api/middleware"
	"github.com/dannyvalenz/fanlink-backend/api/responses"
	"github.com/dannyvalenz/fanlink-backend/api/validators"
	ordersvc "github.com/dannyvalenz/fanlink-backend/internal/orders"
	"github.com/dannyvalenz/fanlink-backend/pkg/db/models"
	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
	"github.com/dannyvalenz/fanlink-backend/pkg/pagination"
)

type orderItemResponse struct {
	ID             uuid.UUID  `json:"id"`
	ProductID      *string    `json:"productId,omitempty"`
	TicketTypeID   *uuid.UUID `json:"ticketTypeId,omitempty"`
	Title          string     `json:"title"`
	UnitPriceCents int64      `json:"unitPriceCents"`
	Quantity       int        `json:"quantity"`
	TotalCents     int64      `json:"totalCents"`
	IsGift         bool       `json:"isGift"`
	RecipientName  *string    `json:"recipientName,omitempty"`
	RecipientEmail *string    `json:"recipientEmail,omitempty"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	ProfileID       uuid.UUID           `json:"profileId"`
	Kind            enums.FlowKind      `json:"kind"`
	Status          enums.OrderStatus   `json:"status"`
	Currency        string              `json:"currency"`
	SubTotalCents   int64               `json:"subTotalCents"`
	TotalCents      int64               `json:"totalCents"`
	PaymentProvider string              `json:"paymentProvider"`
	FailureReason   *string             `json:"failureReason,omitempty"`
	PaidAt          *time.Time          `json:"paidAt,omitempty"`
	Items           []orderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"createdAt"`
}

func newOrderResponse(order *models.Order) orderResponse {
	items := make([]orderItemResponse, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemResponse{
			ID:             item.ID,
			ProductID:      item.ProductID,
			TicketTypeID:   item.TicketTypeID,
			Title:          item.Title,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			TotalCents:     item.TotalCents,
			IsGift:         item.IsGift,
			RecipientName:  item.RecipientName,
			RecipientEmail: item.RecipientEmail,
		}
	}
	return orderResponse{
		ID:              order.ID,
		ProfileID:       order.ProfileID,
		Kind:            order.Kind,
		Status:          order.Status,
		Currency:        order.Currency,
		SubTotalCents:   order.SubTotalCents,
		TotalCents:      order.TotalCents,
		PaymentProvider: order.PaymentProvider.String(),
		FailureReason:   order.FailureReason,
		PaidAt:          order.PaidAt,
		Items:           items,
		CreatedAt:       order.CreatedAt,
	}
}

type finalizeOrderRequest struct {
	PaymentID string    `json:"paymentId" validate:"required"`
	Provider  string    `json:"paymentProviderName" validate:"required"`
	ProfileID uuid.UUID `json:"profileId" validate:"required"`
	OrderID   uuid.UUID `json:"orderId" validate:"required"`
}

// OrderFinalize reconciles a provider payment with its order exactly once.
func OrderFinalize(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var payload finalizeOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := enums.ParsePaymentProvider(payload.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment provider"))
			return
		}

		order, err := svc.Finalize(r.Context(), ordersvc.FinalizeInput{
			PaymentID:    payload.PaymentID,
			ProviderName: provider,
			ProfileID:    payload.ProfileID,
			OrderID:      payload.OrderID,
			SessionID:    middleware.SessionIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// OrderGet returns a single order projection.
func OrderGet(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

// OrdersList pages through a profile's order history, newest first.
func OrdersList(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		profileID, err := parseProfileIDQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orders, nextCursor, err := svc.List(r.Context(), profileID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shaped := make([]orderResponse, len(orders))
		for i := range orders {
			shaped[i] = newOrderResponse(&orders[i])
		}
		responses.WriteSuccess(w, orderListResponse{Orders: shaped, NextCursor: nextCursor})
	}
}
