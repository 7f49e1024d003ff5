package cart

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	"github.com/dannyvalenz/fanlink-backend/pkg/types"
)

// Item is one line in a visitor's cart. Gift purchases of the same product
// are distinct lines per recipient, which is why the identity key includes
// the gift fields.
type Item struct {
	ProductID           uuid.UUID           `json:"productId"`
	ProductVariantID    *uuid.UUID          `json:"productVariantId,omitempty"`
	Title               string              `json:"title"`
	PriceCents          int64               `json:"priceCents"`
	CoverImage          *string             `json:"coverImage,omitempty"`
	Quantity            int                 `json:"quantity"`
	IsGift              bool                `json:"isGift"`
	RecipientName       *string             `json:"recipientName,omitempty"`
	RecipientEmail      *string             `json:"recipientEmail,omitempty"`
	RecipientMessage    *string             `json:"recipientMessage,omitempty"`
	CanIncreaseQuantity bool                `json:"canIncreaseQuantity"`
	PayWhatYouWant      bool                `json:"payWhatYouWant"`
	Color               *string             `json:"color,omitempty"`
	Size                *string             `json:"size,omitempty"`
	DeliveryType        *enums.DeliveryType `json:"deliveryType,omitempty"`
}

// identityKey is the uniqueness key for a cart line. Color and size are
// display attributes and deliberately excluded; the variant id already
// distinguishes purchasable variations.
func (i Item) identityKey() string {
	variant := ""
	if i.ProductVariantID != nil {
		variant = i.ProductVariantID.String()
	}
	email := ""
	if i.RecipientEmail != nil {
		email = strings.ToLower(strings.TrimSpace(*i.RecipientEmail))
	}
	return fmt.Sprintf("%s|%s|%t|%s", i.ProductID, variant, i.IsGift, email)
}

// LineTotalCents returns quantity times unit price.
func (i Item) LineTotalCents() int64 {
	return i.PriceCents * int64(i.Quantity)
}

// Matches reports whether the line is identified by the given removal key.
func (i Item) Matches(productID uuid.UUID, isGift bool, recipientEmail *string) bool {
	if i.ProductID != productID || i.IsGift != isGift {
		return false
	}
	if !isGift {
		return true
	}
	have := ""
	if i.RecipientEmail != nil {
		have = strings.ToLower(strings.TrimSpace(*i.RecipientEmail))
	}
	want := ""
	if recipientEmail != nil {
		want = strings.ToLower(strings.TrimSpace(*recipientEmail))
	}
	return have == want
}

// Subtotal sums line totals across items.
func Subtotal(items []Item) int64 {
	var total int64
	for _, item := range items {
		total += item.LineTotalCents()
	}
	return total
}

// SubtotalDisplay renders the subtotal as a decimal amount string.
func SubtotalDisplay(items []Item) decimal.Decimal {
	return types.CentsToDecimal(Subtotal(items))
}
