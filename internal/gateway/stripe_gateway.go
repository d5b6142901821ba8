package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/logger"

	"github.com/sethvargo/go-retry"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const stripeService = "stripe"

// StripeGateway implements Gateway on the Stripe API. Retries are owned
// here, so the SDK's own network retries are switched off.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	timeout       time.Duration
	maxRetries    uint64
	baseBackoff   time.Duration
}

// NewStripeGateway creates the gateway. backends may be nil to talk to the
// live API.
func NewStripeGateway(cfg Config, backends *stripe.Backends) *StripeGateway {
	if backends == nil {
		backends = stripe.NewBackendsWithConfig(&stripe.BackendConfig{
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		})
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StripeGateway{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		timeout:       timeout,
		maxRetries:    cfg.MaxRetries,
		baseBackoff:   200 * time.Millisecond,
	}
}

// call runs fn under the gateway timeout, retrying transient failures with
// jittered exponential backoff.
func (g *StripeGateway) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	logger.ExternalServiceCall(stripeService, op)
	backoff := retry.WithMaxRetries(g.maxRetries, retry.WithJitterPercent(10, retry.NewExponential(g.baseBackoff)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		classified := classifyStripeError(op, err)
		if domain.IsTransient(classified) && !domain.IsOutcomeUnknown(classified) && ctx.Err() == nil {
			return retry.RetryableError(classified)
		}
		return classified
	})

	var gwErr *domain.GatewayError
	if err != nil && ctx.Err() != nil && !errors.Is(err, domain.ErrDuplicateRequest) && (!errors.As(err, &gwErr) || gwErr.Transient) {
		err = &domain.GatewayError{Op: op, OutcomeUnknown: true, Err: err}
	}
	logger.ExternalServiceResult(stripeService, op, err)
	return err
}

func classifyStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Type == stripe.ErrorTypeIdempotency:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrDuplicateRequest, stripeErr.Msg)
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
			stripeErr.Type == stripe.ErrorTypeAPI:
			return &domain.GatewayError{Op: op, Transient: true, Err: err}
		default:
			return &domain.GatewayError{Op: op, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &domain.GatewayError{Op: op, OutcomeUnknown: true, Err: err}
	}
	// Connection level failures.
	return &domain.GatewayError{Op: op, Transient: true, Err: err}
}

func toIntent(pi *stripe.PaymentIntent) *domain.PaymentIntent {
	out := &domain.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountCents:  pi.Amount,
	}
	if pi.AmountReceived > 0 {
		out.AmountCents = pi.AmountReceived
	}
	if pi.LatestCharge != nil {
		out.ChargeID = pi.LatestCharge.ID
	}
	if pi.LastPaymentError != nil {
		out.LastError = pi.LastPaymentError.Msg
		if out.LastError == "" {
			out.LastError = string(pi.LastPaymentError.Code)
		}
	}
	return out
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountCents),
		Currency:           stripe.String(req.Currency),
		PaymentMethodTypes: []*string{stripe.String("card")},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	var pi *stripe.PaymentIntent
	err := g.call(ctx, "CreateIntent", func(ctx context.Context) error {
		params.Context = ctx
		var err error
		pi, err = g.api.PaymentIntents.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	var pi *stripe.PaymentIntent
	err := g.call(ctx, "GetIntent", func(ctx context.Context) error {
		params.Context = ctx
		var err error
		pi, err = g.api.PaymentIntents.Get(intentID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentConfirmParams{PaymentMethod: stripe.String(paymentMethodID)}
	params.SetIdempotencyKey("confirm_" + intentID + "_" + paymentMethodID)

	var pi *stripe.PaymentIntent
	err := g.call(ctx, "ConfirmIntent", func(ctx context.Context) error {
		params.Context = ctx
		var err error
		pi, err = g.api.PaymentIntents.Confirm(intentID, params)
		return err
	})
	if err != nil {
		// A declined card still leaves the intent readable with its last error.
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard && stripeErr.PaymentIntent != nil {
			return toIntent(stripeErr.PaymentIntent), nil
		}
		return nil, err
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentCancelParams{}
	var pi *stripe.PaymentIntent
	err := g.call(ctx, "CancelIntent", func(ctx context.Context) error {
		params.Context = ctx
		var err error
		pi, err = g.api.PaymentIntents.Cancel(intentID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (string, error) {
	params := &stripe.RefundParams{Amount: stripe.Int64(req.AmountCents)}
	if req.ChargeID != "" {
		params.Charge = stripe.String(req.ChargeID)
	} else {
		params.PaymentIntent = stripe.String(req.PaymentIntentID)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	var refundID string
	err := g.call(ctx, "Refund", func(ctx context.Context) error {
		params.Context = ctx
		r, err := g.api.Refunds.New(params)
		if err != nil {
			return err
		}
		refundID = r.ID
		return nil
	})
	return refundID, err
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: %s has no data", ErrUnhandledEvent, event.Type)
	}

	ev := &domain.PaymentEvent{ID: event.ID, ReceivedAt: time.Now().UTC()}
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed, stripe.EventTypePaymentIntentCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		intent := toIntent(&pi)
		ev.PaymentIntentID = intent.ID
		ev.ChargeID = intent.ChargeID
		ev.AmountCents = intent.AmountCents
		ev.Status = intent.Status
		ev.BookingID = pi.Metadata["booking_id"]
		switch event.Type {
		case stripe.EventTypePaymentIntentSucceeded:
			ev.Type = domain.PaymentEventSucceeded
		case stripe.EventTypePaymentIntentPaymentFailed:
			ev.Type = domain.PaymentEventFailed
		default:
			ev.Type = domain.PaymentEventCanceled
		}
	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("decode charge: %w", err)
		}
		if ch.PaymentIntent == nil {
			return nil, fmt.Errorf("%w: charge %s has no payment intent", ErrUnhandledEvent, ch.ID)
		}
		ev.Type = domain.PaymentEventRefunded
		ev.PaymentIntentID = ch.PaymentIntent.ID
		ev.ChargeID = ch.ID
		ev.AmountCents = ch.AmountRefunded
		ev.Status = string(ch.Status)
		ev.BookingID = ch.Metadata["booking_id"]
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnhandledEvent, event.Type)
	}
	return ev, nil
}
