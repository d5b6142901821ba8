package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ubertool-booking/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test"

func newTestStripe(t *testing.T, handler http.HandlerFunc) *StripeGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	g := NewStripeGateway(Config{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		Timeout:       2 * time.Second,
		MaxRetries:    2,
	}, backends)
	g.baseBackoff = time.Millisecond
	return g
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestStripeGateway_CreateIntent(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		g := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/payment_intents", r.URL.Path)
			assert.Equal(t, "intent_b1", r.Header.Get("Idempotency-Key"))
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "15000", r.PostForm.Get("amount"))
			assert.Equal(t, "usd", r.PostForm.Get("currency"))
			assert.Equal(t, "b1", r.PostForm.Get("metadata[booking_id]"))
			writeJSON(w, http.StatusOK, `{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret","status":"requires_payment_method","amount":15000}`)
		})

		intent, err := g.CreateIntent(context.Background(), IntentRequest{
			AmountCents:    15000,
			Currency:       "usd",
			Metadata:       map[string]string{"booking_id": "b1"},
			IdempotencyKey: "intent_b1",
		})
		require.NoError(t, err)
		assert.Equal(t, "pi_1", intent.ID)
		assert.Equal(t, "pi_1_secret", intent.ClientSecret)
		assert.Equal(t, domain.IntentStatusRequiresPaymentMethod, intent.Status)
		assert.Equal(t, int64(15000), intent.AmountCents)
	})

	t.Run("Transient failure is retried", func(t *testing.T) {
		var attempts int32
		g := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) == 1 {
				writeJSON(w, http.StatusInternalServerError, `{"error":{"type":"api_error","message":"boom"}}`)
				return
			}
			writeJSON(w, http.StatusOK, `{"id":"pi_2","object":"payment_intent","status":"requires_payment_method","amount":100}`)
		})

		intent, err := g.CreateIntent(context.Background(), IntentRequest{AmountCents: 100, Currency: "usd"})
		require.NoError(t, err)
		assert.Equal(t, "pi_2", intent.ID)
		assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
	})

	t.Run("Invalid request is terminal", func(t *testing.T) {
		var attempts int32
		g := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			writeJSON(w, http.StatusBadRequest, `{"error":{"type":"invalid_request_error","message":"bad currency"}}`)
		})

		_, err := g.CreateIntent(context.Background(), IntentRequest{AmountCents: 100, Currency: "zzz"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrPaymentGateway))
		assert.False(t, domain.IsTransient(err))
		assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	})

	t.Run("Idempotency collision", func(t *testing.T) {
		g := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusConflict, `{"error":{"type":"idempotency_error","message":"in flight"}}`)
		})

		_, err := g.CreateIntent(context.Background(), IntentRequest{AmountCents: 100, Currency: "usd", IdempotencyKey: "k"})
		assert.True(t, errors.Is(err, domain.ErrDuplicateRequest))
	})

	t.Run("Timeout has unknown outcome", func(t *testing.T) {
		g := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		})
		g.timeout = 50 * time.Millisecond

		_, err := g.CreateIntent(context.Background(), IntentRequest{AmountCents: 100, Currency: "usd"})
		require.Error(t, err)
		assert.True(t, domain.IsOutcomeUnknown(err))
		assert.True(t, errors.Is(err, domain.ErrPaymentGateway))
	})
}

func TestStripeGateway_ConfirmIntent(t *testing.T) {
	t.Run("Succeeded", func(t *testing.T) {
		g := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/payment_intents/pi_1/confirm", r.URL.Path)
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "pm_card_visa", r.PostForm.Get("payment_method"))
			writeJSON(w, http.StatusOK, `{"id":"pi_1","object":"payment_intent","status":"succeeded","amount":15000,"amount_received":15000,"latest_charge":"ch_1"}`)
		})

		intent, err := g.ConfirmIntent(context.Background(), "pi_1", "pm_card_visa")
		require.NoError(t, err)
		assert.Equal(t, domain.IntentStatusSucceeded, intent.Status)
		assert.Equal(t, "ch_1", intent.ChargeID)
		assert.Equal(t, int64(15000), intent.AmountCents)
	})

	t.Run("Declined card returns the intent", func(t *testing.T) {
		g := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusPaymentRequired, `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined.",
				"payment_intent":{"id":"pi_1","object":"payment_intent","status":"requires_payment_method","amount":15000,
				"last_payment_error":{"type":"card_error","message":"Your card was declined."}}}}`)
		})

		intent, err := g.ConfirmIntent(context.Background(), "pi_1", "pm_card_chargeDeclined")
		require.NoError(t, err)
		assert.Equal(t, domain.IntentStatusRequiresPaymentMethod, intent.Status)
		assert.Equal(t, "Your card was declined.", intent.LastError)

		ev, ok := domain.EventFromIntent(intent, time.Now())
		require.True(t, ok)
		assert.Equal(t, domain.PaymentEventFailed, ev.Type)
	})
}

func TestStripeGateway_Refund(t *testing.T) {
	g := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		assert.Equal(t, "refund_b1_1", r.Header.Get("Idempotency-Key"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "5000", r.PostForm.Get("amount"))
		assert.Equal(t, "ch_1", r.PostForm.Get("charge"))
		writeJSON(w, http.StatusOK, `{"id":"re_1","object":"refund","amount":5000,"status":"succeeded"}`)
	})

	id, err := g.Refund(context.Background(), RefundRequest{
		PaymentIntentID: "pi_1",
		ChargeID:        "ch_1",
		AmountCents:     5000,
		IdempotencyKey:  "refund_b1_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "re_1", id)
}

func signed(payload string) (string, []byte) {
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: []byte(payload), Secret: testWebhookSecret})
	return sp.Header, sp.Payload
}

func TestStripeGateway_ParseWebhook(t *testing.T) {
	g := NewStripeGateway(Config{SecretKey: "sk_test_123", WebhookSecret: testWebhookSecret}, nil)

	t.Run("Payment succeeded", func(t *testing.T) {
		header, payload := signed(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":
			{"id":"pi_1","object":"payment_intent","status":"succeeded","amount":15000,"amount_received":15000,
			"latest_charge":"ch_1","metadata":{"booking_id":"b1"}}}}`)

		ev, err := g.ParseWebhook(payload, header)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.ID)
		assert.Equal(t, domain.PaymentEventSucceeded, ev.Type)
		assert.Equal(t, "pi_1", ev.PaymentIntentID)
		assert.Equal(t, "ch_1", ev.ChargeID)
		assert.Equal(t, int64(15000), ev.AmountCents)
		assert.Equal(t, "b1", ev.BookingID)
	})

	t.Run("Charge refunded", func(t *testing.T) {
		header, payload := signed(`{"id":"evt_2","object":"event","type":"charge.refunded","data":{"object":
			{"id":"ch_1","object":"charge","payment_intent":"pi_1","amount":15000,"amount_refunded":5000,"status":"succeeded"}}}`)

		ev, err := g.ParseWebhook(payload, header)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentEventRefunded, ev.Type)
		assert.Equal(t, "pi_1", ev.PaymentIntentID)
		assert.Equal(t, int64(5000), ev.AmountCents)
		assert.Equal(t, "pi_1:refunded:5000", ev.IdempotencyKey())
	})

	t.Run("Bad signature", func(t *testing.T) {
		_, payload := signed(`{"id":"evt_3","object":"event","type":"payment_intent.succeeded","data":{"object":{}}}`)
		_, err := g.ParseWebhook(payload, "t=1,v1=deadbeef")
		assert.True(t, errors.Is(err, ErrInvalidSignature))
	})

	t.Run("Unhandled type", func(t *testing.T) {
		header, payload := signed(`{"id":"evt_4","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
		_, err := g.ParseWebhook(payload, header)
		assert.True(t, errors.Is(err, ErrUnhandledEvent))
	})
}
