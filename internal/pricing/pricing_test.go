package pricing

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"ubertool-booking/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, limits Limits, policy CancellationPolicy) *Engine {
	t.Helper()
	e, err := NewEngine(limits, policy)
	require.NoError(t, err)
	return e
}

func dateRange(t *testing.T, start, end string) domain.DateRange {
	t.Helper()
	s, err := domain.ParseDate(start)
	require.NoError(t, err)
	e, err := domain.ParseDate(end)
	require.NoError(t, err)
	return domain.DateRange{Start: s, End: e}
}

func TestComputePrice(t *testing.T) {
	e := newEngine(t, DefaultLimits, DefaultPolicy)

	t.Run("Three days", func(t *testing.T) {
		q, err := e.ComputePrice(5000, dateRange(t, "2024-06-01", "2024-06-04"), nil)
		require.NoError(t, err)
		assert.Equal(t, 3, q.DurationDays)
		assert.Equal(t, int64(15000), q.TotalPriceCents)
	})

	t.Run("Fees are added", func(t *testing.T) {
		fees := []domain.Fee{{Type: "cleaning", AmountCents: 750}, {Type: "delivery", AmountCents: 250}}
		q, err := e.ComputePrice(5000, dateRange(t, "2024-06-01", "2024-06-04"), fees)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), q.FeesCents)
		assert.Equal(t, int64(16000), q.TotalPriceCents)
	})

	t.Run("Deterministic", func(t *testing.T) {
		r := dateRange(t, "2024-02-27", "2024-03-02")
		first, err := e.ComputePrice(1234, r, nil)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := e.ComputePrice(1234, r, nil)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
		assert.Equal(t, 4, first.DurationDays)
	})

	t.Run("Negative daily price", func(t *testing.T) {
		_, err := e.ComputePrice(-1, dateRange(t, "2024-06-01", "2024-06-02"), nil)
		assert.True(t, errors.Is(err, domain.ErrValidation))
	})

	t.Run("Negative total", func(t *testing.T) {
		_, err := e.ComputePrice(100, dateRange(t, "2024-06-01", "2024-06-02"), []domain.Fee{{AmountCents: -500}})
		assert.True(t, errors.Is(err, domain.ErrValidation))
	})
}

func TestComputePrice_DurationBounds(t *testing.T) {
	e := newEngine(t, DefaultLimits, DefaultPolicy)
	start, err := domain.ParseDate("2024-06-01")
	require.NoError(t, err)

	tests := []struct {
		days int
		ok   bool
	}{
		{0, false},
		{1, true},
		{30, true},
		{31, false},
	}
	for _, tt := range tests {
		r := domain.DateRange{Start: start, End: start.AddDate(0, 0, tt.days)}
		_, err := e.ComputePrice(1000, r, nil)
		if tt.ok {
			assert.NoErrorf(t, err, "%d days", tt.days)
		} else {
			assert.Truef(t, errors.Is(err, domain.ErrValidation), "%d days: %v", tt.days, err)
		}
	}
}

func TestComputePrice_MaxTotal(t *testing.T) {
	e := newEngine(t, Limits{MinDurationDays: 1, MaxDurationDays: 30, MaxTotalCents: 10000}, DefaultPolicy)
	_, err := e.ComputePrice(5000, dateRange(t, "2024-06-01", "2024-06-04"), nil)
	var dErr *domain.Error
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "total_price", dErr.Field)
}

func TestNewEngine_RejectsBadPolicy(t *testing.T) {
	_, err := NewEngine(DefaultLimits, CancellationPolicy{Tiers: []Tier{{MinHoursBeforeStart: 24, FeePercent: 120}}})
	assert.Error(t, err)

	_, err = NewEngine(Limits{MinDurationDays: 5, MaxDurationDays: 2}, DefaultPolicy)
	assert.Error(t, err)
}

func paidBooking(start time.Time) *domain.Booking {
	return &domain.Booking{
		ID:              "b1",
		StartDate:       start,
		EndDate:         start.AddDate(0, 0, 2),
		TotalPriceCents: 20000,
		Status:          domain.BookingStatusActive,
		PaymentStatus:   domain.PaymentStatusPaid,
		CapturedCents:   20000,
	}
}

func TestComputeCancellation_Tiers(t *testing.T) {
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	b := paidBooking(start)

	t.Run("Full refund beyond three days", func(t *testing.T) {
		q := ComputeCancellation(b, start.AddDate(0, 0, -5), DefaultPolicy)
		assert.True(t, q.CanCancel)
		assert.Equal(t, int64(0), q.FeeCents)
		assert.Equal(t, int64(20000), q.RefundCents)
		assert.Equal(t, 5, q.DaysUntilStart)
		assert.InDelta(t, 120, q.HoursUntilStart, 0.001)
	})

	t.Run("Half fee inside three days", func(t *testing.T) {
		q := ComputeCancellation(b, start.Add(-48*time.Hour), DefaultPolicy)
		assert.True(t, q.CanCancel)
		assert.Equal(t, int64(10000), q.FeeCents)
		assert.Equal(t, int64(10000), q.RefundCents)
	})

	t.Run("Full fee on the last day", func(t *testing.T) {
		q := ComputeCancellation(b, start.Add(-2*time.Hour), DefaultPolicy)
		assert.True(t, q.CanCancel)
		assert.Equal(t, int64(20000), q.FeeCents)
		assert.Equal(t, int64(0), q.RefundCents)
	})

	t.Run("Refused once started", func(t *testing.T) {
		q := ComputeCancellation(b, start.Add(time.Hour), DefaultPolicy)
		assert.False(t, q.CanCancel)
		assert.Equal(t, ReasonRentalStarted, q.Reason)
	})

	t.Run("Refused inside no cancellation window", func(t *testing.T) {
		policy := DefaultPolicy
		policy.NoCancellationWithinHours = 12
		q := ComputeCancellation(b, start.Add(-6*time.Hour), policy)
		assert.False(t, q.CanCancel)
		assert.Equal(t, ReasonNoCancellationWindow, q.Reason)
	})

	t.Run("Refused for closed bookings", func(t *testing.T) {
		for _, s := range []domain.BookingStatus{domain.BookingStatusCompleted, domain.BookingStatusCancelled, domain.BookingStatusRejected} {
			closed := *b
			closed.Status = s
			q := ComputeCancellation(&closed, start.AddDate(0, 0, -10), DefaultPolicy)
			assert.False(t, q.CanCancel)
			assert.Equal(t, ReasonBookingClosed, q.Reason)
		}
	})

	t.Run("Nothing captured", func(t *testing.T) {
		pending := *b
		pending.Status = domain.BookingStatusPending
		pending.PaymentStatus = domain.PaymentStatusPending
		pending.CapturedCents = 0
		q := ComputeCancellation(&pending, start.Add(-2*time.Hour), DefaultPolicy)
		assert.True(t, q.CanCancel)
		assert.Equal(t, int64(0), q.FeeCents)
		assert.Equal(t, int64(0), q.RefundCents)
	})

	t.Run("Deposit is always returned", func(t *testing.T) {
		withDeposit := *b
		withDeposit.ChargeDeposit = true
		withDeposit.DepositCents = 5000
		withDeposit.CapturedCents = 25000
		q := ComputeCancellation(&withDeposit, start.Add(-2*time.Hour), DefaultPolicy)
		assert.Equal(t, int64(20000), q.FeeCents)
		assert.Equal(t, int64(5000), q.RefundCents)
	})
}

func TestComputeCancellation_Conservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	start := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2000; i++ {
		policy := CancellationPolicy{}
		for n := rng.Intn(4); n >= 0; n-- {
			policy.Tiers = append(policy.Tiers, Tier{
				MinHoursBeforeStart: float64(rng.Intn(240)),
				FeePercent:          rng.Intn(101),
			})
		}
		if rng.Intn(3) == 0 {
			policy.NoCancellationWithinHours = float64(rng.Intn(48))
		}

		b := &domain.Booking{
			StartDate:     start,
			Status:        domain.BookingStatusApproved,
			PaymentStatus: domain.PaymentStatusPaid,
			ChargeDeposit: rng.Intn(2) == 0,
			DepositCents:  int64(rng.Intn(10000)),
		}
		b.TotalPriceCents = int64(rng.Intn(100000))
		b.CapturedCents = b.AmountDueCents()
		b.RefundedCents = int64(rng.Intn(int(b.CapturedCents) + 1))

		at := start.Add(-time.Duration(rng.Intn(400*60)) * time.Minute)
		q := ComputeCancellation(b, at, policy)
		if !q.CanCancel {
			continue
		}
		require.Equal(t, q.EligibleCents, q.FeeCents+q.RefundCents, "iteration %d", i)
		require.Equal(t, b.RefundableCents(), q.EligibleCents)
		require.GreaterOrEqual(t, q.FeeCents, int64(0))
		require.GreaterOrEqual(t, q.RefundCents, int64(0))
	}
}
