package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type stubIntentAPI struct {
	getFn func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (s stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.getFn(id, params)
}

func TestStripeVerifierAcceptsSucceededIntent(t *testing.T) {
	verifier := &StripeVerifier{
		intents: stubIntentAPI{getFn: func(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			if id != "pi_123" {
				t.Fatalf("unexpected intent id %q", id)
			}
			return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusSucceeded, Amount: 499}, nil
		}},
		logger: func(context.Context, string, map[string]any) {},
	}

	if err := verifier.Verify(context.Background(), "pi_123", 499); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestStripeVerifierRejectsPendingIntent(t *testing.T) {
	verifier := &StripeVerifier{
		intents: stubIntentAPI{getFn: func(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusProcessing, Amount: 499}, nil
		}},
		logger: func(context.Context, string, map[string]any) {},
	}

	err := verifier.Verify(context.Background(), "pi_123", 499)
	if !errors.Is(err, ErrPaymentNotSettled) {
		t.Fatalf("expected ErrPaymentNotSettled, got %v", err)
	}
}

func TestStripeVerifierRejectsShortPayment(t *testing.T) {
	verifier := &StripeVerifier{
		intents: stubIntentAPI{getFn: func(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusSucceeded, Amount: 100}, nil
		}},
		logger: func(context.Context, string, map[string]any) {},
	}

	err := verifier.Verify(context.Background(), "pi_123", 499)
	if !errors.Is(err, ErrPaymentAmountMismatch) {
		t.Fatalf("expected ErrPaymentAmountMismatch, got %v", err)
	}
}
