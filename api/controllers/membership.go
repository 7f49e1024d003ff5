package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dannyvalenz/fanlink-backend/api/responses"
	"github.com/dannyvalenz/fanlink-backend/api/validators"
	membershipsvc "github.com/dannyvalenz/fanlink-backend/internal/membership"
	"github.com/dannyvalenz/fanlink-backend/pkg/db/models"
	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
)

type membershipTierResponse struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	Description       *string   `json:"description,omitempty"`
	MonthlyPriceCents int64     `json:"monthlyPriceCents"`
	YearlyPriceCents  int64     `json:"yearlyPriceCents"`
	AllowCustomAmount bool      `json:"allowCustomAmount"`
}

// MembershipTiers lists the profile's tiers, cheapest first.
func MembershipTiers(svc membershipsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership service unavailable"))
			return
		}

		profileID, err := parseProfileIDQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tiers, err := svc.ListTiers(r.Context(), profileID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shaped := make([]membershipTierResponse, len(tiers))
		for i, tier := range tiers {
			shaped[i] = membershipTierResponse{
				ID:                tier.ID,
				Name:              tier.Name,
				Description:       tier.Description,
				MonthlyPriceCents: tier.MonthlyPriceCents,
				YearlyPriceCents:  tier.YearlyPriceCents,
				AllowCustomAmount: tier.AllowCustomAmount,
			}
		}
		responses.WriteSuccess(w, map[string]any{"tiers": shaped})
	}
}

type subscriptionResponse struct {
	ID            uuid.UUID                `json:"id"`
	ProfileID     uuid.UUID                `json:"profileId"`
	TierID        uuid.UUID                `json:"tierId"`
	BillingCycle  enums.BillingCycle       `json:"billingCycle"`
	AmountCents   int64                    `json:"amountCents"`
	Currency      string                   `json:"currency"`
	Status        enums.SubscriptionStatus `json:"status"`
	ActivatedAt   *time.Time               `json:"activatedAt,omitempty"`
	CancelledAt   *time.Time               `json:"cancelledAt,omitempty"`
	PaymentID     string                   `json:"paymentId,omitempty"`
	PaymentSecret string                   `json:"paymentSecret,omitempty"`
}

func newSubscriptionResponse(sub *models.Subscription, paymentID, paymentSecret string) subscriptionResponse {
	return subscriptionResponse{
		ID:            sub.ID,
		ProfileID:     sub.ProfileID,
		TierID:        sub.TierID,
		BillingCycle:  sub.BillingCycle,
		AmountCents:   sub.AmountCents,
		Currency:      sub.Currency,
		Status:        sub.Status,
		ActivatedAt:   sub.ActivatedAt,
		CancelledAt:   sub.CancelledAt,
		PaymentID:     paymentID,
		PaymentSecret: paymentSecret,
	}
}

type subscribeRequest struct {
	ProfileID    uuid.UUID `json:"profileId" validate:"required"`
	TierID       uuid.UUID `json:"tierId" validate:"required"`
	BillingCycle string    `json:"billingCycle" validate:"required,oneof=monthly yearly"`
	AmountCents  int64     `json:"amountCents" validate:"omitempty,gt=0"`
	Email        string    `json:"email" validate:"required,email"`
}

// MembershipSubscribe creates an incomplete subscription and returns the
// client secret for its first payment.
func MembershipSubscribe(svc membershipsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership service unavailable"))
			return
		}

		var payload subscribeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cycle, err := enums.ParseBillingCycle(payload.BillingCycle)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid billing cycle"))
			return
		}

		intent, err := svc.CreateSubscription(r.Context(), membershipsvc.SubscriptionInput{
			ProfileID:   payload.ProfileID,
			TierID:      payload.TierID,
			Cycle:       cycle,
			AmountCents: payload.AmountCents,
			Email:       payload.Email,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated,
			newSubscriptionResponse(intent.Subscription, intent.PaymentID, intent.PaymentSecret))
	}
}

type finalizeMembershipRequest struct {
	PaymentID string    `json:"paymentId" validate:"required"`
	Provider  string    `json:"paymentProviderName" validate:"required"`
	ProfileID uuid.UUID `json:"profileId" validate:"required"`
}

// MembershipFinalize settles the first subscription payment exactly once.
func MembershipFinalize(svc membershipsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership service unavailable"))
			return
		}

		var payload finalizeMembershipRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := enums.ParsePaymentProvider(payload.Provider)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment provider"))
			return
		}

		sub, err := svc.Finalize(r.Context(), membershipsvc.FinalizeInput{
			PaymentID:    payload.PaymentID,
			ProviderName: provider,
			ProfileID:    payload.ProfileID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub, "", ""))
	}
}
