package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dannyvalenz/fanlink-backend/api/middleware"
	"github.com/dannyvalenz/fanlink-backend/internal/checkout"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
)

type intentResponse struct {
	OrderID       uuid.UUID `json:"orderId"`
	PaymentID     string    `json:"paymentId"`
	PaymentSecret string    `json:"paymentSecret,omitempty"`
	SubTotalCents int64     `json:"subTotalCents"`
	TotalCents    int64     `json:"totalCents"`
}

func newIntentResponse(intent *checkout.Intent) intentResponse {
	return intentResponse{
		OrderID:       intent.OrderID,
		PaymentID:     intent.PaymentID,
		PaymentSecret: intent.PaymentSecret,
		SubTotalCents: intent.SubTotalCents,
		TotalCents:    intent.TotalCents,
	}
}

func parseProfileIDQuery(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("profileId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "profileId query parameter is required")
	}
	profileID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid profile id")
	}
	return profileID, nil
}

// userIDFromContext resolves the authenticated buyer, if any.
func userIDFromContext(r *http.Request) *uuid.UUID {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return nil
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &userID
}
