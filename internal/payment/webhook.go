package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"dds-registration/internal/utils"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// WebhookError represents an error that occurred during webhook processing
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int    // HTTP status code
	PublicError   string // Safe to expose to clients
	InternalError string // Detailed error for logs only
	OriginalErr   error  // Underlying error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

// HandleWebhook verifies a processor notification and confirms the payment
// named in the intent metadata. Redelivered notifications are harmless.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.Stripe.WebhookSecret == "" {
		s.Logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.Stripe.WebhookSecret, opts)
	if err != nil {
		s.Logger.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("Rejected webhook: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Webhook signature verification failed",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	s.Logger.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event: %s (created %s)",
		event.Type, utils.UnixTimeToTime(event.Created).Format(time.RFC3339)))

	switch event.Type {
	case "payment_intent.succeeded":
		paymentID, werr := s.intentPaymentID(event)
		if werr != nil {
			return werr
		}
		p, changed, err := s.ConfirmPayment(ctx, paymentID)
		if err != nil {
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to process payment",
				InternalError: fmt.Sprintf("Failed to confirm payment %d: %v", paymentID, err),
				OriginalErr:   err,
			}
		}
		s.Logger.Info("WEBHOOK", fmt.Sprintf("Payment %s confirmed (changed=%t)", p.InvoiceNo(), changed))

	case "payment_intent.payment_failed":
		paymentID, werr := s.intentPaymentID(event)
		if werr != nil {
			return werr
		}
		// the payment stays unpaid and the user may try again
		s.Logger.Warn("WEBHOOK", fmt.Sprintf("Card payment failed for payment %d", paymentID))

	default:
		s.Logger.Info("WEBHOOK", fmt.Sprintf("Unhandled event type: %s", event.Type))
	}

	return nil
}

func (s *Service) intentPaymentID(event stripe.Event) (int64, *WebhookError) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal payment intent: %v", err))
		return 0, &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("Failed to unmarshal payment intent: %v", err),
			OriginalErr:   err,
		}
	}

	raw, ok := intent.Metadata["payment_id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if !ok || err != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("Payment intent %s has no usable payment_id in metadata", intent.ID))
		return 0, &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid payment intent data",
			InternalError: fmt.Sprintf("Payment intent %s has no usable payment_id in metadata", intent.ID),
		}
	}
	return id, nil
}
