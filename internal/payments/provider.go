package payments

import (
	"context"

	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
)

// IntentState is the provider-agnostic view of a payment's lifecycle.
type IntentState string

const (
	IntentStateSucceeded IntentState = "succeeded"
	IntentStatePending   IntentState = "pending"
	IntentStateFailed    IntentState = "failed"
)

// CreateIntentParams describes the charge to prepare. Metadata is passed
// through to the provider and echoed back on webhooks.
type CreateIntentParams struct {
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

// IntentResult is the handle the client's payment widget needs.
type IntentResult struct {
	ProviderPaymentID string
	ClientSecret      string
}

// IntentStatus is the authoritative payment state fetched at finalize time.
type IntentStatus struct {
	ProviderPaymentID string
	State             IntentState
	AmountCents       int64
	Currency          string
}

// SubscriptionParams describes a recurring membership charge.
type SubscriptionParams struct {
	AmountCents int64
	Currency    string
	Cycle       enums.BillingCycle
	Email       string
	Metadata    map[string]string
}

// SubscriptionResult carries the provider subscription plus the secret for
// its first payment.
type SubscriptionResult struct {
	ProviderSubscriptionID string
	ProviderPaymentID      string
	ClientSecret           string
}

// Provider is the port every payment processor adapter implements. Finalize
// routes to a provider by its Name.
type Provider interface {
	Name() enums.PaymentProvider
	CreateIntent(ctx context.Context, params CreateIntentParams) (*IntentResult, error)
	GetIntent(ctx context.Context, providerPaymentID string) (*IntentStatus, error)
	CreateSubscription(ctx context.Context, params SubscriptionParams) (*SubscriptionResult, error)
}

// Registry resolves providers by name.
type Registry struct {
	providers map[enums.PaymentProvider]Provider
}

// NewRegistry indexes the given providers. At least one is required.
func NewRegistry(providers ...Provider) (*Registry, error) {
	indexed := make(map[enums.PaymentProvider]Provider, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		if _, dup := indexed[p.Name()]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "duplicate payment provider registration").
				WithDetails(map[string]any{"provider": p.Name().String()})
		}
		indexed[p.Name()] = p
	}
	if len(indexed) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "at least one payment provider required")
	}
	return &Registry{providers: indexed}, nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name enums.PaymentProvider) (Provider, error) {
	if !name.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment provider").
			WithDetails(map[string]any{"provider": name.String()})
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment provider is not enabled").
			WithDetails(map[string]any{"provider": name.String()})
	}
	return p, nil
}

// Names lists the registered provider names.
func (r *Registry) Names() []enums.PaymentProvider {
	names := make([]enums.PaymentProvider, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
