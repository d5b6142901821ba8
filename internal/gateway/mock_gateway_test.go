package gateway

import (
	"context"
	"errors"
	"testing"

	"ubertool-booking/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGateway_PaymentFlow(t *testing.T) {
	ctx := context.Background()
	m := NewMockGateway(testWebhookSecret)

	intent, err := m.CreateIntent(ctx, IntentRequest{AmountCents: 20000, Currency: "usd", IdempotencyKey: "k1", Metadata: map[string]string{"booking_id": "b1"}})
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusRequiresPaymentMethod, intent.Status)

	again, err := m.CreateIntent(ctx, IntentRequest{AmountCents: 20000, Currency: "usd", IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, intent.ID, again.ID)

	declined, err := m.ConfirmIntent(ctx, intent.ID, DeclinedPaymentMethod)
	require.NoError(t, err)
	assert.NotEmpty(t, declined.LastError)

	paid, err := m.ConfirmIntent(ctx, intent.ID, "pm_card_visa")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusSucceeded, paid.Status)
	assert.NotEmpty(t, paid.ChargeID)

	_, err = m.CancelIntent(ctx, intent.ID)
	assert.True(t, errors.Is(err, domain.ErrPaymentGateway))

	t.Run("Refunds never exceed the capture", func(t *testing.T) {
		id, err := m.Refund(ctx, RefundRequest{PaymentIntentID: intent.ID, AmountCents: 15000, IdempotencyKey: "r1"})
		require.NoError(t, err)

		dup, err := m.Refund(ctx, RefundRequest{PaymentIntentID: intent.ID, AmountCents: 15000, IdempotencyKey: "r1"})
		require.NoError(t, err)
		assert.Equal(t, id, dup)
		assert.Equal(t, int64(15000), m.Refunded(intent.ID))

		_, err = m.Refund(ctx, RefundRequest{PaymentIntentID: intent.ID, AmountCents: 5001, IdempotencyKey: "r2"})
		assert.True(t, errors.Is(err, domain.ErrPaymentGateway))
	})
}

func TestMockGateway_FailNext(t *testing.T) {
	m := NewMockGateway("")
	m.FailNext("CreateIntent", &domain.GatewayError{Op: "CreateIntent", Transient: true, Err: errors.New("unavailable")})

	_, err := m.CreateIntent(context.Background(), IntentRequest{AmountCents: 100, Currency: "usd"})
	assert.True(t, domain.IsTransient(err))

	_, err = m.CreateIntent(context.Background(), IntentRequest{AmountCents: 100, Currency: "usd"})
	assert.NoError(t, err)
}

func TestMockGateway_Webhook(t *testing.T) {
	m := NewMockGateway(testWebhookSecret)
	intent, err := m.CreateIntent(context.Background(), IntentRequest{AmountCents: 500, Currency: "usd", Metadata: map[string]string{"booking_id": "b9"}})
	require.NoError(t, err)

	ev, err := m.Succeed(intent.ID)
	require.NoError(t, err)
	payload, header, err := m.Sign(ev)
	require.NoError(t, err)

	parsed, err := m.ParseWebhook(payload, header)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentEventSucceeded, parsed.Type)
	assert.Equal(t, "b9", parsed.BookingID)
	assert.Equal(t, int64(500), parsed.AmountCents)

	_, err = m.ParseWebhook(payload, "t=1,v1=00")
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}
