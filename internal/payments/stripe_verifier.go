package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

var (
	// ErrPaymentNotSettled indicates the payment intent has not succeeded.
	ErrPaymentNotSettled = errors.New("payments: payment not settled")
	// ErrPaymentAmountMismatch indicates the intent amount differs from the order total.
	ErrPaymentAmountMismatch = errors.New("payments: amount mismatch")
)

// StripeLogger defines the logging contract for Stripe operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeVerifierConfig configures the StripeVerifier.
type StripeVerifierConfig struct {
	APIKey string
	Logger StripeLogger
}

// StripeVerifier checks client-supplied payment references against Stripe.
// Webhook signature verification is a separate concern and not handled here.
type StripeVerifier struct {
	intents stripePaymentIntentAPI
	logger  StripeLogger
}

// NewStripeVerifier constructs a verifier bound to the given API key.
func NewStripeVerifier(cfg StripeVerifierConfig) (*StripeVerifier, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("stripe verifier: api key is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	sc := &client.API{}
	sc.Init(key, nil)
	return &StripeVerifier{
		intents: sc.PaymentIntents,
		logger:  logger,
	}, nil
}

// Verify fetches the payment intent and confirms it succeeded for at least
// the expected amount.
func (v *StripeVerifier) Verify(ctx context.Context, paymentRef string, expectedAmount int64) error {
	if v == nil || v.intents == nil {
		return errors.New("stripe verifier: not initialised")
	}
	intentID := strings.TrimSpace(paymentRef)
	if intentID == "" {
		return errors.New("stripe verifier: payment reference is required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := v.intents.Get(intentID, params)
	if err != nil {
		return fmt.Errorf("stripe verifier: lookup %s: %w", intentID, err)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		v.logger(ctx, "payment.verify.rejected", map[string]any{
			"intent": intentID,
			"status": string(intent.Status),
		})
		return fmt.Errorf("%w: intent %s status %s", ErrPaymentNotSettled, intentID, intent.Status)
	}
	if expectedAmount > 0 && intent.Amount < expectedAmount {
		v.logger(ctx, "payment.verify.amount_mismatch", map[string]any{
			"intent":   intentID,
			"amount":   intent.Amount,
			"expected": expectedAmount,
		})
		return fmt.Errorf("%w: intent %s paid %d, expected %d", ErrPaymentAmountMismatch, intentID, intent.Amount, expectedAmount)
	}
	return nil
}
