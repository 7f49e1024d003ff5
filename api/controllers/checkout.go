package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dannyvalenz/fanlink-backend/api/middleware"
	"github.com/dannyvalenz/fanlink-backend/api/responses"
	"github.com/dannyvalenz/fanlink-backend/api/validators"
	checkoutsvc "github.com/dannyvalenz/fanlink-backend/internal/checkout"
	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
)

type checkoutSessionResponse struct {
	Session *checkoutsvc.Session `json:"session"`
	Intent  *intentResponse      `json:"intent,omitempty"`
}

func newCheckoutResponse(sess *checkoutsvc.Session, intent *checkoutsvc.Intent) checkoutSessionResponse {
	resp := checkoutSessionResponse{Session: sess}
	if intent != nil {
		shaped := newIntentResponse(intent)
		resp.Intent = &shaped
	}
	return resp
}

func parseFlowParam(r *http.Request) (enums.FlowKind, error) {
	flow, err := enums.ParseFlowKind(chi.URLParam(r, "flow"))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout flow")
	}
	return flow, nil
}

type startCheckoutRequest struct {
	ProfileID uuid.UUID  `json:"profileId" validate:"required"`
	EventID   *uuid.UUID `json:"eventId"`
	TierID    *uuid.UUID `json:"tierId"`
	Email     string     `json:"email" validate:"omitempty,email"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
}

// CheckoutStart opens a wizard for the flow named in the path. Stages that
// are already satisfied by the input are skipped.
func CheckoutStart(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		flow, err := parseFlowParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload startCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sess, err := svc.Start(r.Context(), middleware.SessionIDFromContext(r.Context()), checkoutsvc.StartInput{
			Flow:          flow,
			ProfileID:     payload.ProfileID,
			EventID:       payload.EventID,
			TierID:        payload.TierID,
			Authenticated: userIDFromContext(r) != nil,
			Email:         payload.Email,
			FirstName:     payload.FirstName,
			LastName:      payload.LastName,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(sess, nil))
	}
}

// CheckoutGet returns the wizard state for the flow.
func CheckoutGet(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		flow, err := parseFlowParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sess, err := svc.Get(r.Context(), middleware.SessionIDFromContext(r.Context()), flow)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCheckoutResponse(sess, nil))
	}
}

type advanceCheckoutRequest struct {
	TicketSelection map[string]int `json:"ticketSelection"`
	TierID          *uuid.UUID     `json:"tierId"`
	BillingCycle    *string        `json:"billingCycle" validate:"omitempty,oneof=monthly yearly"`
	AmountCents     *int64         `json:"amountCents" validate:"omitempty,gt=0"`
	Email           string         `json:"email" validate:"omitempty,email"`
	ConfirmEmail    string         `json:"confirmEmail"`
	FirstName       string         `json:"firstName"`
	LastName        string         `json:"lastName"`
}

// CheckoutAdvance moves the wizard one stage forward. Entering the payment
// stage returns the freshly issued intent alongside the session; the client
// secret appears only in that response.
func CheckoutAdvance(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		flow, err := parseFlowParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload advanceCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkoutsvc.AdvanceInput{
			TicketSelection: payload.TicketSelection,
			TierID:          payload.TierID,
			AmountCents:     payload.AmountCents,
			Email:           payload.Email,
			ConfirmEmail:    payload.ConfirmEmail,
			FirstName:       payload.FirstName,
			LastName:        payload.LastName,
		}
		if payload.BillingCycle != nil {
			cycle, parseErr := enums.ParseBillingCycle(*payload.BillingCycle)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid billing cycle"))
				return
			}
			input.BillingCycle = &cycle
		}

		sess, intent, err := svc.Advance(r.Context(), middleware.SessionIDFromContext(r.Context()), flow, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCheckoutResponse(sess, intent))
	}
}

// CheckoutBack moves the wizard one stage backward, keeping collected state.
func CheckoutBack(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		flow, err := parseFlowParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sess, err := svc.Back(r.Context(), middleware.SessionIDFromContext(r.Context()), flow)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCheckoutResponse(sess, nil))
	}
}
