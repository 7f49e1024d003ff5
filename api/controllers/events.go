package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dannyvalenz/fanlink-backend/api/middleware"
	"github.com/dannyvalenz/fanlink-backend/api/responses"
	"github.com/dannyvalenz/fanlink-backend/api/validators"
	eventsvc "github.com/dannyvalenz/fanlink-backend/internal/events"
	"github.com/dannyvalenz/fanlink-backend/pkg/db/models"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
)

type ticketTypeResponse struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	PriceCents        int64     `json:"priceCents"`
	QuantityAvailable int       `json:"quantityAvailable"`
}

type eventResponse struct {
	ID          uuid.UUID            `json:"id"`
	ProfileID   uuid.UUID            `json:"profileId"`
	Title       string               `json:"title"`
	Description *string              `json:"description,omitempty"`
	VenueName   *string              `json:"venueName,omitempty"`
	StartsAt    time.Time            `json:"startsAt"`
	Tickets     []ticketTypeResponse `json:"tickets"`
}

func newEventResponse(event *models.Event) eventResponse {
	tickets := make([]ticketTypeResponse, len(event.Tickets))
	for i, ticket := range event.Tickets {
		tickets[i] = ticketTypeResponse{
			ID:                ticket.ID,
			Name:              ticket.Name,
			PriceCents:        ticket.PriceCents,
			QuantityAvailable: ticket.QuantityAvailable,
		}
	}
	return eventResponse{
		ID:          event.ID,
		ProfileID:   event.ProfileID,
		Title:       event.Title,
		Description: event.Description,
		VenueName:   event.VenueName,
		StartsAt:    event.StartsAt,
		Tickets:     tickets,
	}
}

// EventGet returns the event with its purchasable ticket types.
func EventGet(svc eventsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "events service unavailable"))
			return
		}

		eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event id"))
			return
		}
		profileID, err := parseProfileIDQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		event, err := svc.GetEvent(r.Context(), eventID, profileID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newEventResponse(event))
	}
}

type ticketCheckoutRequest struct {
	ProfileID uuid.UUID      `json:"profileId" validate:"required"`
	Selection map[string]int `json:"selection" validate:"required,min=1"`
	Email     string         `json:"email" validate:"required,email"`
	FirstName string         `json:"firstName" validate:"required"`
	LastName  string         `json:"lastName" validate:"required"`
}

// EventCheckout reserves the selected tickets and prepares a payment intent
// in one step, outside the staged wizard.
func EventCheckout(svc eventsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "events service unavailable"))
			return
		}

		eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event id"))
			return
		}

		var payload ticketCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.Checkout(r.Context(), eventsvc.CheckoutInput{
			EventID:   eventID,
			ProfileID: payload.ProfileID,
			SessionID: middleware.SessionIDFromContext(r.Context()),
			UserID:    userIDFromContext(r),
			Selection: payload.Selection,
			Email:     payload.Email,
			FirstName: payload.FirstName,
			LastName:  payload.LastName,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newIntentResponse(intent))
	}
}
