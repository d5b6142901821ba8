package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestDateRange_Overlaps(t *testing.T) {
	booked := DateRange{Start: mustDate(t, "2024-06-01"), End: mustDate(t, "2024-06-05")}

	t.Run("Overlapping tail", func(t *testing.T) {
		r := DateRange{Start: mustDate(t, "2024-06-04"), End: mustDate(t, "2024-06-08")}
		assert.True(t, booked.Overlaps(r))
		assert.True(t, r.Overlaps(booked))
	})

	t.Run("End is exclusive", func(t *testing.T) {
		r := DateRange{Start: mustDate(t, "2024-06-05"), End: mustDate(t, "2024-06-10")}
		assert.False(t, booked.Overlaps(r))
		assert.False(t, r.Overlaps(booked))
	})

	t.Run("Contained", func(t *testing.T) {
		r := DateRange{Start: mustDate(t, "2024-06-02"), End: mustDate(t, "2024-06-03")}
		assert.True(t, booked.Overlaps(r))
	})
}

func TestParseDateRange(t *testing.T) {
	r, err := ParseDateRange("2024-07-01", "2024-07-03")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Days())
	assert.Equal(t, time.UTC, r.Start.Location())

	_, err = ParseDateRange("2024-07-03", "2024-07-03")
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = ParseDateRange("07/01/2024", "2024-07-03")
	var dErr *Error
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "start_date", dErr.Field)
}

func TestTerminalStatesRejectEveryTransition(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, status := range []BookingStatus{BookingStatusRejected, BookingStatusCompleted, BookingStatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			b := Booking{ID: "b1", Status: status, PaymentStatus: PaymentStatusPaid}
			assert.True(t, status.IsTerminal())

			attempts := map[string]func() error{
				"approve":  func() error { _, err := Approve(b, now); return err },
				"reject":   func() error { _, err := Reject(b, now); return err },
				"activate": func() error { _, err := Activate(b, now, false); return err },
				"complete": func() error { _, err := Complete(b, now); return err },
				"cancel":   func() error { _, err := Cancel(b, 1, "x", 0, 0, now); return err },
			}
			for name, attempt := range attempts {
				err := attempt()
				assert.Truef(t, errors.Is(err, ErrInvalidState), "%s from %s: %v", name, status, err)
			}
		})
	}
}

func TestActivate(t *testing.T) {
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	b := Booking{ID: "b1", Status: BookingStatusApproved, PaymentStatus: PaymentStatusPending, StartDate: start}

	t.Run("Requires paid", func(t *testing.T) {
		_, err := Activate(b, start, false)
		assert.True(t, errors.Is(err, ErrInvalidState))
	})

	t.Run("Requires start date when gated", func(t *testing.T) {
		paid := b
		paid.PaymentStatus = PaymentStatusPaid
		_, err := Activate(paid, start.Add(-time.Hour), true)
		assert.True(t, errors.Is(err, ErrInvalidState))

		out, err := Activate(paid, start, true)
		require.NoError(t, err)
		assert.Equal(t, BookingStatusActive, out.Status)
		assert.Len(t, out.Notifications, 1)
	})
}

func TestMarkPaid_Idempotent(t *testing.T) {
	now := time.Now()
	b := Booking{ID: "b1", Status: BookingStatusApproved, PaymentStatus: PaymentStatusPending}

	once, changed, err := MarkPaid(b, "ch_1", 20000, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, PaymentStatusPaid, once.PaymentStatus)
	assert.Equal(t, int64(20000), once.CapturedCents)

	twice, changed, err := MarkPaid(once, "ch_1", 20000, now)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, twice.Notifications, 1)
}

func TestApplyRefund(t *testing.T) {
	now := time.Now()
	b := Booking{ID: "b1", PaymentStatus: PaymentStatusPaid, CapturedCents: 10000}

	t.Run("Partial then full", func(t *testing.T) {
		out, err := ApplyRefund(b, 4000, now)
		require.NoError(t, err)
		assert.Equal(t, PaymentStatusPartiallyRefunded, out.PaymentStatus)

		out, err = ApplyRefund(out, 6000, now)
		require.NoError(t, err)
		assert.Equal(t, PaymentStatusRefunded, out.PaymentStatus)
		assert.Equal(t, int64(0), out.RefundableCents())
	})

	t.Run("Never more than captured", func(t *testing.T) {
		_, err := ApplyRefund(b, 10001, now)
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("Nothing captured", func(t *testing.T) {
		pending := Booking{ID: "b2", PaymentStatus: PaymentStatusPending}
		_, err := ApplyRefund(pending, 1, now)
		assert.True(t, errors.Is(err, ErrInvalidState))
	})
}

func TestTransitionsDoNotAliasInput(t *testing.T) {
	b := Booking{ID: "b1", Status: BookingStatusPending, Notifications: make([]BookingNotification, 0, 4)}
	out, err := Approve(b, time.Now())
	require.NoError(t, err)
	assert.Len(t, out.Notifications, 1)
	assert.Len(t, b.Notifications, 0)
	assert.Equal(t, BookingStatusPending, b.Status)
}

func TestGatewayError(t *testing.T) {
	err := &GatewayError{Op: "create_intent", OutcomeUnknown: true, Err: errors.New("deadline exceeded")}
	assert.True(t, errors.Is(err, ErrPaymentGateway))
	assert.True(t, IsTransient(err))
	assert.True(t, IsOutcomeUnknown(err))
	assert.False(t, IsTransient(NewValidationError("x", "y")))
}

func TestEventFromIntent(t *testing.T) {
	now := time.Now()
	ev, ok := EventFromIntent(&PaymentIntent{ID: "pi_1", Status: IntentStatusSucceeded, AmountCents: 500}, now)
	require.True(t, ok)
	assert.Equal(t, PaymentEventSucceeded, ev.Type)
	assert.Equal(t, "pi_1:succeeded", ev.IdempotencyKey())

	_, ok = EventFromIntent(&PaymentIntent{ID: "pi_2", Status: IntentStatusRequiresPaymentMethod}, now)
	assert.False(t, ok)

	ev, ok = EventFromIntent(&PaymentIntent{ID: "pi_3", Status: IntentStatusRequiresPaymentMethod, LastError: "card_declined"}, now)
	require.True(t, ok)
	assert.Equal(t, PaymentEventFailed, ev.Type)
}
