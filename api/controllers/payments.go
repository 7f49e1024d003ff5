package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dannyvalenz/fanlink-backend/api/middleware"
	"github.com/dannyvalenz/fanlink-backend/api/responses"
	"github.com/dannyvalenz/fanlink-backend/api/validators"
	ordersvc "github.com/dannyvalenz/fanlink-backend/internal/orders"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
)

type startPaymentRequest struct {
	ProfileID   uuid.UUID `json:"profileId" validate:"required"`
	AmountCents int64     `json:"amountCents" validate:"omitempty,gt=0"`
	Email       string    `json:"email" validate:"required,email"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
}

// PaymentStart snapshots the session cart into an order and returns the
// provider intent for it. AmountCents, when present, must match the cart
// subtotal the client displayed.
func PaymentStart(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var payload startPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.StartPayment(r.Context(), ordersvc.StartPaymentInput{
			SessionID:   middleware.SessionIDFromContext(r.Context()),
			ProfileID:   payload.ProfileID,
			UserID:      userIDFromContext(r),
			Email:       payload.Email,
			FirstName:   payload.FirstName,
			LastName:    payload.LastName,
			AmountCents: payload.AmountCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newIntentResponse(intent))
	}
}
