package checkout

import (
	"time"

	"github.com/google/uuid"

	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
)

// Session is the server-held state of one in-progress checkout wizard. It is
// ephemeral: redis only, bounded by TTL, keyed by (visitor session, flow).
// The provider client secret is never stored here; it is returned to the
// caller once and the session keeps only the provider payment id.
type Session struct {
	SessionID string              `json:"sessionId"`
	Flow      enums.FlowKind      `json:"flow"`
	Stage     enums.CheckoutStage `json:"stage"`
	ProfileID uuid.UUID           `json:"profileId"`

	// Tickets flow selection: ticket type id -> quantity.
	TicketSelection map[string]int `json:"ticketSelection,omitempty"`
	EventID         *uuid.UUID     `json:"eventId,omitempty"`

	// Membership flow selection.
	TierID       *uuid.UUID          `json:"tierId,omitempty"`
	BillingCycle *enums.BillingCycle `json:"billingCycle,omitempty"`
	AmountCents  *int64              `json:"amountCents,omitempty"`

	// Buyer details gathered before payment.
	Email        string `json:"email,omitempty"`
	ConfirmEmail string `json:"confirmEmail,omitempty"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`

	// Authenticated marks a buyer recognized via JWT; the guest-or-login
	// stage is skipped for them.
	Authenticated bool `json:"authenticated"`

	// Set once an intent has been issued for the current selection.
	OrderID           *uuid.UUID `json:"orderId,omitempty"`
	ProviderPaymentID *string    `json:"providerPaymentId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StageIndex returns the session stage's position in its flow sequence.
func (s *Session) StageIndex() int {
	return enums.StageIndex(s.Flow, s.Stage)
}

// AtFinalStage reports whether the wizard has no further stage.
func (s *Session) AtFinalStage() bool {
	stages := enums.StagesFor(s.Flow)
	return s.StageIndex() == len(stages)-1
}

// HasIntent reports whether an intent is bound for the current selection.
func (s *Session) HasIntent() bool {
	return s.OrderID != nil && s.ProviderPaymentID != nil
}

// InvalidateIntent drops the bound intent. Called whenever the selection
// changes, since an issued intent is only valid for the selection it priced.
func (s *Session) InvalidateIntent() {
	s.OrderID = nil
	s.ProviderPaymentID = nil
}

// TotalTicketQuantity sums the selected ticket quantities.
func (s *Session) TotalTicketQuantity() int {
	total := 0
	for _, qty := range s.TicketSelection {
		total += qty
	}
	return total
}
