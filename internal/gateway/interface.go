package gateway

import (
	"context"
	"errors"

	"ubertool-booking/internal/domain"
)

var (
	// ErrInvalidSignature is returned by ParseWebhook when the payload was not
	// signed with the configured secret.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnhandledEvent marks webhook event types the booking engine ignores.
	ErrUnhandledEvent = errors.New("unhandled webhook event")
)

// Gateway defines the interface for payment processors.
// Supports both mock (in-memory) and Stripe.
//
// Every blocking call honors ctx. A call that runs out of time returns a
// *domain.GatewayError with OutcomeUnknown set; the caller must not assume
// the operation failed.
type Gateway interface {
	// CreateIntent creates a payment intent for req.AmountCents.
	// Repeating a request with the same IdempotencyKey returns the same intent.
	CreateIntent(ctx context.Context, req IntentRequest) (*domain.PaymentIntent, error)

	// GetIntent reads the current state of an intent.
	GetIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error)

	// ConfirmIntent attaches paymentMethodID and attempts the charge.
	ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*domain.PaymentIntent, error)

	// CancelIntent voids an intent that has not been captured.
	CancelIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error)

	// Refund returns req.AmountCents of a captured payment and yields the
	// processor's refund reference.
	Refund(ctx context.Context, req RefundRequest) (string, error)

	// ParseWebhook verifies signature and converts the payload into a
	// PaymentEvent. Unknown event types return ErrUnhandledEvent.
	ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error)
}

type IntentRequest struct {
	AmountCents    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type RefundRequest struct {
	PaymentIntentID string
	ChargeID        string
	AmountCents     int64
	IdempotencyKey  string
}
