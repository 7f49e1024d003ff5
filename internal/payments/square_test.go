package payments

import (
	"context"
	"testing"

	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/dannyvalenz/fanlink-backend/pkg/errors"
	pkgsquare "github.com/dannyvalenz/fanlink-backend/pkg/square"
)

type stubSquareAPI struct {
	created *pkgsquare.PaymentCreateParams
	payment *sq.Payment
	err     error
}

func (s *stubSquareAPI) CreatePayment(_ context.Context, params pkgsquare.PaymentCreateParams) (*sq.Payment, error) {
	s.created = &params
	return s.payment, s.err
}

func (s *stubSquareAPI) GetPayment(_ context.Context, _ string) (*sq.Payment, error) {
	return s.payment, s.err
}

func (s *stubSquareAPI) NewIdempotencyKey(prefix string) string {
	return prefix + "-key"
}

func squarePayment(id, status string, amount int64) *sq.Payment {
	currency := sq.CurrencyUsd
	return &sq.Payment{
		ID:     &id,
		Status: &status,
		AmountMoney: &sq.Money{
			Amount:   &amount,
			Currency: &currency,
		},
	}
}

func TestSquareCreateIntentRequiresSource(t *testing.T) {
	t.Parallel()

	provider := &SquareProvider{api: &stubSquareAPI{}}
	_, err := provider.CreateIntent(context.Background(), CreateIntentParams{AmountCents: 2000})
	if err == nil {
		t.Fatal("missing sourceId should be rejected")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestSquareCreateIntentChargesSource(t *testing.T) {
	t.Parallel()

	api := &stubSquareAPI{payment: squarePayment("sqpmt_1", "PENDING", 2000)}
	provider := &SquareProvider{api: api}

	result, err := provider.CreateIntent(context.Background(), CreateIntentParams{
		AmountCents: 2000,
		Metadata:    map[string]string{"sourceId": "cnon:token", "orderId": "order-1"},
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if result.ProviderPaymentID != "sqpmt_1" {
		t.Fatalf("unexpected payment id %s", result.ProviderPaymentID)
	}
	if result.ClientSecret != "" {
		t.Fatal("square charges have no client secret")
	}
	if api.created.SourceID != "cnon:token" || api.created.Currency != "USD" {
		t.Fatalf("unexpected params %+v", api.created)
	}
	if api.created.IdempotencyKey == "" {
		t.Fatal("idempotency key must be set")
	}
}

func TestSquareGetIntentStateMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status string
		want   IntentState
	}{
		{"COMPLETED", IntentStateSucceeded},
		{"APPROVED", IntentStatePending},
		{"PENDING", IntentStatePending},
		{"FAILED", IntentStateFailed},
		{"CANCELED", IntentStateFailed},
	}
	for _, tc := range cases {
		provider := &SquareProvider{api: &stubSquareAPI{payment: squarePayment("sqpmt_1", tc.status, 2500)}}
		status, err := provider.GetIntent(context.Background(), "sqpmt_1")
		if err != nil {
			t.Fatalf("%s: get intent: %v", tc.status, err)
		}
		if status.State != tc.want {
			t.Fatalf("%s: got %s want %s", tc.status, status.State, tc.want)
		}
		if status.AmountCents != 2500 || status.Currency != "usd" {
			t.Fatalf("%s: unexpected status %+v", tc.status, status)
		}
	}
}

func TestSquareSubscriptionsUnavailable(t *testing.T) {
	t.Parallel()

	provider := &SquareProvider{api: &stubSquareAPI{}}
	if _, err := provider.CreateSubscription(context.Background(), SubscriptionParams{}); err == nil {
		t.Fatal("square subscriptions should be rejected")
	}
}
