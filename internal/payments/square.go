package payments

import (
	"context"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	pkgsquare "github.com/dannyvalenz/fanlink-backend/pkg/square"
)

// squareAPI is the slice of the Square wrapper the adapter uses.
type squareAPI interface {
	CreatePayment(ctx context.Context, params pkgsquare.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	NewIdempotencyKey(prefix string) string
}

// SquareProvider adapts Square payments to the provider port. Square has no
// client-secret handshake: the widget tokenizes the card and the charge is
// created here, so CreateIntent expects a sourceId in the metadata.
type SquareProvider struct {
	api squareAPI
}

// NewSquareProvider wires the shared Square client into the port.
func NewSquareProvider(client *pkgsquare.Client) (*SquareProvider, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square client required")
	}
	return &SquareProvider{api: client}, nil
}

func (p *SquareProvider) Name() enums.PaymentProvider {
	return enums.PaymentProviderSquare
}

func (p *SquareProvider) CreateIntent(ctx context.Context, params CreateIntentParams) (*IntentResult, error) {
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	sourceID := strings.TrimSpace(params.Metadata["sourceId"])
	if sourceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square payments require a tokenized sourceId")
	}

	payment, err := p.api.CreatePayment(ctx, pkgsquare.PaymentCreateParams{
		AmountCents:    params.AmountCents,
		Currency:       strings.ToUpper(normalizeCurrency(params.Currency)),
		SourceID:       sourceID,
		IdempotencyKey: p.api.NewIdempotencyKey("checkout"),
		ReferenceID:    params.Metadata["orderId"],
	})
	if err != nil {
		return nil, err
	}
	id := payment.GetID()
	if id == nil || *id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment id")
	}
	// No secret: the charge is already in flight when this returns.
	return &IntentResult{ProviderPaymentID: *id}, nil
}

func (p *SquareProvider) GetIntent(ctx context.Context, providerPaymentID string) (*IntentStatus, error) {
	if strings.TrimSpace(providerPaymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	payment, err := p.api.GetPayment(ctx, providerPaymentID)
	if err != nil {
		return nil, err
	}

	status := &IntentStatus{
		ProviderPaymentID: providerPaymentID,
		State:             squareIntentState(payment.GetStatus()),
	}
	if money := payment.GetAmountMoney(); money != nil {
		if amount := money.GetAmount(); amount != nil {
			status.AmountCents = *amount
		}
		if currency := money.GetCurrency(); currency != nil {
			status.Currency = strings.ToLower(string(*currency))
		}
	}
	return status, nil
}

func (p *SquareProvider) CreateSubscription(ctx context.Context, params SubscriptionParams) (*SubscriptionResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "memberships are not available through square")
}

func squareIntentState(status *string) IntentState {
	if status == nil {
		return IntentStatePending
	}
	switch *status {
	case "COMPLETED":
		return IntentStateSucceeded
	case "FAILED", "CANCELED":
		return IntentStateFailed
	default:
		return IntentStatePending
	}
}
