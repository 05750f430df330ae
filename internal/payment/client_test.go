package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type stubIntentAPI struct {
	newIntent *stripe.PaymentIntent
	newErr    error
	newParams *stripe.PaymentIntentParams

	getIntent *stripe.PaymentIntent
	getErrs   []error
	getCalls  int
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.newParams = params
	return s.newIntent, s.newErr
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.getCalls++
	if len(s.getErrs) > 0 {
		err := s.getErrs[0]
		s.getErrs = s.getErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return s.getIntent, nil
}

func TestCreateIntent_Success(t *testing.T) {
	api := &stubIntentAPI{
		newIntent: &stripe.PaymentIntent{
			ID:           "pi_123",
			ClientSecret: "pi_123_secret",
			Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
		},
	}
	c := newClientWithAPI(api)

	intent, err := c.CreateIntent(context.Background(), 24999, "inr", 7, "")
	if err != nil {
		t.Fatalf("CreateIntent error: %v", err)
	}
	if intent.ID != "pi_123" || intent.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected intent: %+v", intent)
	}

	if api.newParams == nil || api.newParams.Amount == nil || *api.newParams.Amount != 24999 {
		t.Fatalf("amount not passed to gateway: %+v", api.newParams)
	}
	if api.newParams.IdempotencyKey == nil || *api.newParams.IdempotencyKey != "order-7" {
		t.Fatalf("idempotency key = %v, want order-7", api.newParams.IdempotencyKey)
	}
}

func TestCreateIntent_GatewayError(t *testing.T) {
	api := &stubIntentAPI{newErr: errors.New("connection refused")}
	c := newClientWithAPI(api)

	_, err := c.CreateIntent(context.Background(), 100, "inr", 1, "")
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
}

func TestCreateIntent_SupersededIntentChangesKey(t *testing.T) {
	api := &stubIntentAPI{
		newIntent: &stripe.PaymentIntent{ID: "pi_new", ClientSecret: "pi_new_secret"},
	}
	c := newClientWithAPI(api)

	if _, err := c.CreateIntent(context.Background(), 100, "inr", 7, "pi_old"); err != nil {
		t.Fatalf("CreateIntent error: %v", err)
	}

	if api.newParams.IdempotencyKey == nil || *api.newParams.IdempotencyKey != "order-7-pi_old" {
		t.Fatalf("idempotency key = %v, want order-7-pi_old", api.newParams.IdempotencyKey)
	}
}

func TestGetIntent_RetriesIdempotentRead(t *testing.T) {
	api := &stubIntentAPI{
		getIntent: &stripe.PaymentIntent{
			ID:     "pi_123",
			Status: stripe.PaymentIntentStatusSucceeded,
		},
		getErrs: []error{errors.New("temporary failure")},
	}
	c := newClientWithAPI(api)

	intent, err := c.GetIntent(context.Background(), "pi_123")
	if err != nil {
		t.Fatalf("GetIntent error: %v", err)
	}
	if intent.Status != StatusSucceeded {
		t.Fatalf("status = %q, want %q", intent.Status, StatusSucceeded)
	}
	if api.getCalls != 2 {
		t.Fatalf("getCalls = %d, want 2", api.getCalls)
	}
}

func TestGetIntent_GatewayErrorAfterRetries(t *testing.T) {
	api := &stubIntentAPI{
		getErrs: []error{
			errors.New("down"),
			errors.New("down"),
			errors.New("down"),
		},
	}
	c := newClientWithAPI(api)

	_, err := c.GetIntent(context.Background(), "pi_123")
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected ErrGateway, got %v", err)
	}
	if api.getCalls != 3 {
		t.Fatalf("getCalls = %d, want 3", api.getCalls)
	}
}
