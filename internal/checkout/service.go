package checkout

import (
	"context"
	"fmt"
	"net/mail"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
	"github.com/dannyvalenz/fanlink-backend/pkg/metrics"
)

// Intent is the one-shot payment handle issued when a session enters the
// payment stage. The secret is returned to the caller exactly once.
type Intent struct {
	OrderID       uuid.UUID
	PaymentID     string
	PaymentSecret string
	TotalCents    int64
	SubTotalCents int64
	ShippingCents int64
}

// IntentIssuer creates the order and provider intent for the session's
// current selection. Implemented by the orders and membership services.
type IntentIssuer interface {
	IssueIntent(ctx context.Context, sess *Session) (*Intent, error)
}

// StartInput seeds a new wizard.
type StartInput struct {
	Flow          enums.FlowKind
	ProfileID     uuid.UUID
	EventID       *uuid.UUID
	TierID        *uuid.UUID
	Authenticated bool
	Email         string
	FirstName     string
	LastName      string
}

// AdvanceInput carries the data collected at the current stage.
type AdvanceInput struct {
	TicketSelection map[string]int
	TierID          *uuid.UUID
	BillingCycle    *enums.BillingCycle
	AmountCents     *int64
	Email           string
	ConfirmEmail    string
	FirstName       string
	LastName        string
}

// Service drives the linear checkout wizards.
type Service interface {
	Start(ctx context.Context, sessionID string, input StartInput) (*Session, error)
	Get(ctx context.Context, sessionID string, flow enums.FlowKind) (*Session, error)
	// Advance applies the stage input, validates the guard for leaving the
	// current stage, and moves exactly one stage forward. Entering payment
	// issues an intent for the current selection; the returned Intent is
	// non-nil only on that transition.
	Advance(ctx context.Context, sessionID string, flow enums.FlowKind, input AdvanceInput) (*Session, *Intent, error)
	// Back moves exactly one stage backward without resetting any state.
	Back(ctx context.Context, sessionID string, flow enums.FlowKind) (*Session, error)
}

type issuerByFlow map[enums.FlowKind]IntentIssuer

type service struct {
	store   *SessionStore
	issuers issuerByFlow
	logg    *logger.Logger
	metrics *metrics.CheckoutMetrics
}

// NewService builds the flow controller. Issuers are keyed by flow kind so
// ticket, cart, and membership intents are created by their own services.
func NewService(store *SessionStore, issuers map[enums.FlowKind]IntentIssuer, logg *logger.Logger, m *metrics.CheckoutMetrics) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("session store required")
	}
	if len(issuers) == 0 {
		return nil, fmt.Errorf("at least one intent issuer required")
	}
	return &service{store: store, issuers: issuers, logg: logg, metrics: m}, nil
}

func (s *service) Start(ctx context.Context, sessionID string, input StartInput) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	stages := enums.StagesFor(input.Flow)
	if len(stages) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown checkout flow")
	}
	if input.ProfileID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile id is required")
	}
	if input.Flow == enums.FlowKindTickets && input.EventID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required for ticket checkout")
	}

	now := time.Now().UTC()
	sess := &Session{
		SessionID:     sessionID,
		Flow:          input.Flow,
		Stage:         stages[0],
		ProfileID:     input.ProfileID,
		EventID:       input.EventID,
		TierID:        input.TierID,
		Authenticated: input.Authenticated,
		Email:         strings.TrimSpace(input.Email),
		FirstName:     strings.TrimSpace(input.FirstName),
		LastName:      strings.TrimSpace(input.LastName),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Stage skips: a recognized buyer does not see guest-or-login, and a
	// pre-resolved tier jumps straight to its details.
	if sess.Stage == enums.StageGuestOrLogin && sess.Authenticated {
		sess.Stage = stages[1]
	}
	if sess.Stage == enums.StageTierSelection && sess.TierID != nil {
		sess.Stage = enums.StageTierDetails
	}

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist checkout session")
	}
	if s.metrics != nil {
		s.metrics.IncSessionStarted(string(input.Flow))
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"flow": input.Flow, "stage": sess.Stage})
		s.logg.Info(logCtx, "checkout session started")
	}
	return sess, nil
}

func (s *service) Get(ctx context.Context, sessionID string, flow enums.FlowKind) (*Session, error) {
	sess, err := s.store.Load(ctx, sessionID, flow)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	if sess == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no checkout session in progress")
	}
	return sess, nil
}

func (s *service) Advance(ctx context.Context, sessionID string, flow enums.FlowKind, input AdvanceInput) (*Session, *Intent, error) {
	sess, err := s.Get(ctx, sessionID, flow)
	if err != nil {
		return nil, nil, err
	}

	applyInput(sess, input)

	if err := s.guardLeaving(sess); err != nil {
		return nil, nil, err
	}

	stages := enums.StagesFor(sess.Flow)
	idx := sess.StageIndex()
	if idx < 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeInternal, "session stage not in flow")
	}
	if idx == len(stages)-1 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is already at its final stage").
			WithDetails(map[string]any{"stage": string(sess.Stage)})
	}
	next := stages[idx+1]

	var intent *Intent
	if next == enums.StagePayment && !sess.HasIntent() {
		intent, err = s.issueIntent(ctx, sess)
		if err != nil {
			// The wizard still lands on payment; no secret is bound and
			// the client is told why.
			sess.Stage = next
			if saveErr := s.store.Save(ctx, sess); saveErr != nil && s.logg != nil {
				s.logg.Error(ctx, "persist session after intent failure", saveErr)
			}
			return nil, nil, err
		}
		orderID := intent.OrderID
		paymentID := intent.PaymentID
		sess.OrderID = &orderID
		sess.ProviderPaymentID = &paymentID
	}

	sess.Stage = next
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist checkout session")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"flow": sess.Flow, "stage": sess.Stage})
		s.logg.Info(logCtx, "checkout advanced")
	}
	return sess, intent, nil
}

func (s *service) Back(ctx context.Context, sessionID string, flow enums.FlowKind) (*Session, error) {
	sess, err := s.Get(ctx, sessionID, flow)
	if err != nil {
		return nil, err
	}

	idx := sess.StageIndex()
	if idx <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout is already at its first stage").
			WithDetails(map[string]any{"stage": string(sess.Stage)})
	}

	stages := enums.StagesFor(sess.Flow)
	sess.Stage = stages[idx-1]
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist checkout session")
	}
	return sess, nil
}

func (s *service) issueIntent(ctx context.Context, sess *Session) (*Intent, error) {
	issuer, ok := s.issuers[sess.Flow]
	if !ok || issuer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "no intent issuer for flow")
	}
	intent, err := issuer.IssueIntent(ctx, sess)
	if err != nil {
		return nil, err
	}
	if intent == nil || intent.PaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "issuer returned no intent")
	}
	return intent, nil
}

// applyInput copies stage data onto the session. A change to the priced
// selection invalidates any previously issued intent.
func applyInput(sess *Session, input AdvanceInput) {
	if input.TicketSelection != nil {
		if !reflect.DeepEqual(sess.TicketSelection, input.TicketSelection) {
			sess.InvalidateIntent()
		}
		sess.TicketSelection = input.TicketSelection
	}
	if input.TierID != nil {
		if sess.TierID == nil || *sess.TierID != *input.TierID {
			sess.InvalidateIntent()
		}
		sess.TierID = input.TierID
	}
	if input.BillingCycle != nil {
		if sess.BillingCycle == nil || *sess.BillingCycle != *input.BillingCycle {
			sess.InvalidateIntent()
		}
		sess.BillingCycle = input.BillingCycle
	}
	if input.AmountCents != nil {
		if sess.AmountCents == nil || *sess.AmountCents != *input.AmountCents {
			sess.InvalidateIntent()
		}
		sess.AmountCents = input.AmountCents
	}
	if v := strings.TrimSpace(input.Email); v != "" {
		sess.Email = v
	}
	if v := strings.TrimSpace(input.ConfirmEmail); v != "" {
		sess.ConfirmEmail = v
	}
	if v := strings.TrimSpace(input.FirstName); v != "" {
		sess.FirstName = v
	}
	if v := strings.TrimSpace(input.LastName); v != "" {
		sess.LastName = v
	}
}

// guardLeaving validates that the session may leave its current stage. All
// checks run before any provider call is made.
func (s *service) guardLeaving(sess *Session) error {
	switch sess.Stage {
	case enums.StageGuestOrLogin:
		if sess.Authenticated {
			return nil
		}
		if !validEmail(sess.Email) {
			return pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required to continue as guest").
				WithDetails(map[string]any{"stage": string(sess.Stage)})
		}
	case enums.StageTicketSelection:
		if sess.TotalTicketQuantity() <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "select at least one ticket").
				WithDetails(map[string]any{"stage": string(sess.Stage)})
		}
	case enums.StageBuyerDetails:
		if sess.FirstName == "" || sess.LastName == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "first and last name are required").
				WithDetails(map[string]any{"stage": string(sess.Stage)})
		}
		if !validEmail(sess.Email) {
			return pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required").
				WithDetails(map[string]any{"stage": string(sess.Stage)})
		}
		if sess.ConfirmEmail != sess.Email {
			return pkgerrors.New(pkgerrors.CodeValidation, "email confirmation does not match").
				WithDetails(map[string]any{"stage": string(sess.Stage)})
		}
	case enums.StageTierSelection:
		if sess.TierID == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "select a membership tier").
				WithDetails(map[string]any{"stage": string(sess.Stage)})
		}
	case enums.StageTierDetails:
		if sess.BillingCycle == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "choose a billing cycle").
				WithDetails(map[string]any{"stage": string(sess.Stage)})
		}
		if !validEmail(sess.Email) {
			return pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required").
				WithDetails(map[string]any{"stage": string(sess.Stage)})
		}
	case enums.StagePayment:
		if !sess.HasIntent() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment has not been initiated").
				WithDetails(map[string]any{"stage": string(sess.Stage)})
		}
	}
	return nil
}

func validEmail(value string) bool {
	if value == "" {
		return false
	}
	addr, err := mail.ParseAddress(value)
	return err == nil && addr.Address == value
}
