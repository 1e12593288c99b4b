package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dds-registration/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var (
	ErrStripeAPIError         = errors.New("stripe API error")
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
)

// ChargeClient is the card processor.
type ChargeClient interface {
	CreateChargeIntent(ctx context.Context, currency string, amountMinor int64, email string, metadata map[string]string) (intentID, clientSecret string, err error)
	Refund(ctx context.Context, intentID string) error
}

type StripeClient struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeClient(secretKey string, log *logger.Logger) (*StripeClient, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(secretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeClient{client: sc, log: log}, nil
}

// CreateChargeIntent creates a payment intent the browser confirms with the client secret
func (s *StripeClient) CreateChargeIntent(ctx context.Context, currency string, amountMinor int64, email string, metadata map[string]string) (string, string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:       stripe.Int64(amountMinor),
		Currency:     stripe.String(strings.ToLower(currency)),
		ReceiptEmail: stripe.String(email),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to create payment intent: %v", err))
		return "", "", fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}
	s.log.Info("STRIPE", fmt.Sprintf("Payment intent created: %s (%d %s)", pi.ID, amountMinor, currency))
	return pi.ID, pi.ClientSecret, nil
}

// Refund returns the full amount of the intent
func (s *StripeClient) Refund(ctx context.Context, intentID string) error {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx

	r, err := s.client.Refunds.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to refund payment intent %s: %v", intentID, err))
		return fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}
	s.log.Info("STRIPE", fmt.Sprintf("Refund %s created for %s (status %s)", r.ID, intentID, r.Status))
	return nil
}
