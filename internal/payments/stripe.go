package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
	pkgstripe "github.com/dannyvalenz/fanlink-backend/pkg/stripe"
)

// stripeAPI is the subset of Stripe operations the adapter needs, wrapped so
// the adapter can be tested without network calls.
type stripeAPI interface {
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	CreateCustomer(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error)
	CreateSubscription(ctx context.Context, params *stripe.SubscriptionCreateParams) (*stripe.Subscription, error)
}

type stripeAPIWrapper struct {
	sc *stripe.Client
}

func (w *stripeAPIWrapper) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
	return w.sc.V1PaymentIntents.Create(ctx, params)
}

func (w *stripeAPIWrapper) GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	return w.sc.V1PaymentIntents.Retrieve(ctx, id, &stripe.PaymentIntentRetrieveParams{})
}

func (w *stripeAPIWrapper) CreateCustomer(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error) {
	return w.sc.V1Customers.Create(ctx, params)
}

func (w *stripeAPIWrapper) CreateSubscription(ctx context.Context, params *stripe.SubscriptionCreateParams) (*stripe.Subscription, error) {
	return w.sc.V1Subscriptions.Create(ctx, params)
}

// StripeProvider adapts Stripe payment intents and subscriptions to the
// provider port.
type StripeProvider struct {
	api               stripeAPI
	membershipProduct string
	logg              *logger.Logger
}

// NewStripeProvider wires the shared Stripe client into the port.
func NewStripeProvider(client *pkgstripe.Client, membershipProduct string, logg *logger.Logger) (*StripeProvider, error) {
	if client == nil || client.API() == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return &StripeProvider{
		api:               &stripeAPIWrapper{sc: client.API()},
		membershipProduct: strings.TrimSpace(membershipProduct),
		logg:              logg,
	}, nil
}

func (p *StripeProvider) Name() enums.PaymentProvider {
	return enums.PaymentProviderStripe
}

func (p *StripeProvider) CreateIntent(ctx context.Context, params CreateIntentParams) (*IntentResult, error) {
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	intent, err := p.api.CreatePaymentIntent(ctx, &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(params.AmountCents),
		Currency: stripe.String(normalizeCurrency(params.Currency)),
		Metadata: params.Metadata,
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	})
	if err != nil {
		return nil, mapStripeError(err, "create payment intent")
	}
	if p.logg != nil {
		logCtx := p.logg.WithFields(ctx, map[string]any{"provider": "stripe", "payment_id": intent.ID})
		p.logg.Info(logCtx, "payment intent created")
	}
	return &IntentResult{ProviderPaymentID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func (p *StripeProvider) GetIntent(ctx context.Context, providerPaymentID string) (*IntentStatus, error) {
	if strings.TrimSpace(providerPaymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	intent, err := p.api.GetPaymentIntent(ctx, providerPaymentID)
	if err != nil {
		return nil, mapStripeError(err, "fetch payment intent")
	}
	return &IntentStatus{
		ProviderPaymentID: intent.ID,
		State:             stripeIntentState(intent),
		AmountCents:       intent.Amount,
		Currency:          strings.ToLower(string(intent.Currency)),
	}, nil
}

func (p *StripeProvider) CreateSubscription(ctx context.Context, params SubscriptionParams) (*SubscriptionResult, error) {
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !params.Cycle.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a billing cycle is required")
	}
	if p.membershipProduct == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe membership product is not configured")
	}

	customer, err := p.api.CreateCustomer(ctx, &stripe.CustomerCreateParams{
		Email:    stripe.String(params.Email),
		Metadata: params.Metadata,
	})
	if err != nil {
		return nil, mapStripeError(err, "create customer")
	}

	sub, err := p.api.CreateSubscription(ctx, &stripe.SubscriptionCreateParams{
		Customer: stripe.String(customer.ID),
		Items: []*stripe.SubscriptionCreateItemParams{{
			PriceData: &stripe.SubscriptionCreateItemPriceDataParams{
				Currency:   stripe.String(normalizeCurrency(params.Currency)),
				Product:    stripe.String(p.membershipProduct),
				UnitAmount: stripe.Int64(params.AmountCents),
				Recurring: &stripe.SubscriptionCreateItemPriceDataRecurringParams{
					Interval: stripe.String(stripeInterval(params.Cycle)),
				},
			},
		}},
		PaymentBehavior: stripe.String("default_incomplete"),
		Metadata:        params.Metadata,
		Expand:          []*string{stripe.String("latest_invoice.payment_intent")},
	})
	if err != nil {
		return nil, mapStripeError(err, "create subscription")
	}

	result := &SubscriptionResult{ProviderSubscriptionID: sub.ID}
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		result.ProviderPaymentID = sub.LatestInvoice.PaymentIntent.ID
		result.ClientSecret = sub.LatestInvoice.PaymentIntent.ClientSecret
	}
	if result.ClientSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription returned no payment secret")
	}
	if p.logg != nil {
		logCtx := p.logg.WithFields(ctx, map[string]any{"provider": "stripe", "subscription_id": sub.ID})
		p.logg.Info(logCtx, "subscription created")
	}
	return result, nil
}

// stripeIntentState collapses Stripe's intent statuses. requires_payment_method
// is the initial state and also the state after a declined attempt; only the
// latter carries a last payment error.
func stripeIntentState(intent *stripe.PaymentIntent) IntentState {
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return IntentStateSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return IntentStateFailed
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if intent.LastPaymentError != nil {
			return IntentStateFailed
		}
		return IntentStatePending
	default:
		return IntentStatePending
	}
}

func stripeInterval(cycle enums.BillingCycle) string {
	if cycle == enums.BillingCycleYearly {
		return "year"
	}
	return "month"
}

func normalizeCurrency(currency string) string {
	c := strings.ToLower(strings.TrimSpace(currency))
	if c == "" {
		return "usd"
	}
	return c
}

func mapStripeError(err error, op string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		code := pkgerrors.CodeDependency
		switch stripeErr.Type {
		case stripe.ErrorTypeCard:
			code = pkgerrors.CodePayment
		case stripe.ErrorTypeInvalidRequest:
			code = pkgerrors.CodeValidation
		case stripe.ErrorTypeAuthentication:
			code = pkgerrors.CodeUnauthorized
		}
		return pkgerrors.Wrap(code, err, "stripe "+op+" failed")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe "+op+" failed")
}
