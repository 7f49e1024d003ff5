package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dannyvalenz/fanlink-backend/api/middleware"
	"github.com/dannyvalenz/fanlink-backend/api/responses"
	"github.com/dannyvalenz/fanlink-backend/api/validators"
	cartsvc "github.com/dannyvalenz/fanlink-backend/internal/cart"
	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
)

type cartResponse struct {
	Items         []cartsvc.Item `json:"items"`
	SubtotalCents int64          `json:"subtotalCents"`
	Added         *bool          `json:"added,omitempty"`
}

func newCartResponse(items []cartsvc.Item, subtotal int64) cartResponse {
	if items == nil {
		items = []cartsvc.Item{}
	}
	return cartResponse{Items: items, SubtotalCents: subtotal}
}

// CartGet returns the visitor's cart lines and subtotal.
func CartGet(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		sessionID := middleware.SessionIDFromContext(r.Context())
		items, err := svc.Items(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subtotal, err := svc.SubtotalCents(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(items, subtotal))
	}
}

type addCartItemRequest struct {
	ProductID        uuid.UUID  `json:"productId" validate:"required"`
	ProductVariantID *uuid.UUID `json:"productVariantId"`
	Title            string     `json:"title" validate:"required"`
	PriceCents       int64      `json:"priceCents" validate:"min=0"`
	CoverImage       *string    `json:"coverImage"`
	Quantity         int        `json:"quantity" validate:"required,min=1"`
	IsGift           bool       `json:"isGift"`
	RecipientName    *string    `json:"recipientName"`
	RecipientEmail   *string    `json:"recipientEmail" validate:"omitempty,email"`
	RecipientMessage *string    `json:"recipientMessage"`
	CanIncrease      bool       `json:"canIncreaseQuantity"`
	PayWhatYouWant   bool       `json:"payWhatYouWant"`
	Color            *string    `json:"color"`
	Size             *string    `json:"size"`
	DeliveryType     *string    `json:"deliveryType"`
}

func (r addCartItemRequest) toItem() (cartsvc.Item, error) {
	item := cartsvc.Item{
		ProductID:           r.ProductID,
		ProductVariantID:    r.ProductVariantID,
		Title:               r.Title,
		PriceCents:          r.PriceCents,
		CoverImage:          r.CoverImage,
		Quantity:            r.Quantity,
		IsGift:              r.IsGift,
		RecipientName:       r.RecipientName,
		RecipientEmail:      r.RecipientEmail,
		RecipientMessage:    r.RecipientMessage,
		CanIncreaseQuantity: r.CanIncrease,
		PayWhatYouWant:      r.PayWhatYouWant,
		Color:               r.Color,
		Size:                r.Size,
	}
	if r.DeliveryType != nil {
		delivery, err := enums.ParseDeliveryType(*r.DeliveryType)
		if err != nil {
			return cartsvc.Item{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery type")
		}
		item.DeliveryType = &delivery
	}
	return item, nil
}

// CartAdd appends a line or replaces the line with the same identity. The
// response reports which of the two happened.
func CartAdd(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := payload.toItem()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID := middleware.SessionIDFromContext(r.Context())
		added, err := svc.Add(r.Context(), sessionID, item)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.Items(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subtotal, err := svc.SubtotalCents(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := newCartResponse(items, subtotal)
		resp.Added = &added
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

type removeCartItemRequest struct {
	ProductID      uuid.UUID `json:"productId" validate:"required"`
	IsGift         bool      `json:"isGift"`
	RecipientEmail *string   `json:"recipientEmail" validate:"omitempty,email"`
}

// CartRemove deletes the line matching the identity key.
func CartRemove(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		var payload removeCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID := middleware.SessionIDFromContext(r.Context())
		if err := svc.Remove(r.Context(), sessionID, payload.ProductID, payload.IsGift, payload.RecipientEmail); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.Items(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subtotal, err := svc.SubtotalCents(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(items, subtotal))
	}
}

// CartClear empties the visitor's cart.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		sessionID := middleware.SessionIDFromContext(r.Context())
		if err := svc.Clear(r.Context(), sessionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCartResponse(nil, 0))
	}
}
