package pricing

import (
	"fmt"
	"math"
	"sort"
	"time"

	"ubertool-booking/internal/domain"
)

// Limits bounds what a single booking may cost.
type Limits struct {
	MinDurationDays int
	MaxDurationDays int
	// MaxTotalCents guards against abusive quotes. Zero disables the check.
	MaxTotalCents int64
}

// DefaultLimits is the 1..30 day window with no price ceiling.
var DefaultLimits = Limits{MinDurationDays: 1, MaxDurationDays: 30}

// Quote is the price breakdown for a date range.
type Quote struct {
	DurationDays    int   `json:"duration_days"`
	RentalCents     int64 `json:"rental_cents"`
	FeesCents       int64 `json:"fees_cents"`
	TotalPriceCents int64 `json:"total_price_cents"`
}

// Engine computes prices and cancellation quotes.
type Engine struct {
	limits Limits
	policy CancellationPolicy
}

func NewEngine(limits Limits, policy CancellationPolicy) (*Engine, error) {
	if limits.MinDurationDays < 1 {
		limits.MinDurationDays = DefaultLimits.MinDurationDays
	}
	if limits.MaxDurationDays < limits.MinDurationDays {
		return nil, fmt.Errorf("max duration %d is below min duration %d", limits.MaxDurationDays, limits.MinDurationDays)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{limits: limits, policy: policy.normalized()}, nil
}

func (e *Engine) Limits() Limits { return e.limits }

func (e *Engine) Policy() CancellationPolicy { return e.policy }

// ComputePrice returns durationDays and totalPrice = daily * days + fees.
func (e *Engine) ComputePrice(dailyPriceCents int64, r domain.DateRange, fees []domain.Fee) (Quote, error) {
	if dailyPriceCents < 0 {
		return Quote{}, domain.NewValidationError("daily_price", "daily price cannot be negative")
	}
	if !r.Start.Before(r.End) {
		return Quote{}, domain.NewValidationError("end_date", "end date must be after start date")
	}

	days := r.Days()
	if days < e.limits.MinDurationDays || days > e.limits.MaxDurationDays {
		return Quote{}, domain.NewValidationError("end_date",
			fmt.Sprintf("duration must be between %d and %d days, got %d", e.limits.MinDurationDays, e.limits.MaxDurationDays, days))
	}

	q := Quote{DurationDays: days, RentalCents: dailyPriceCents * int64(days)}
	for _, f := range fees {
		q.FeesCents += f.AmountCents
	}
	q.TotalPriceCents = q.RentalCents + q.FeesCents

	if q.TotalPriceCents < 0 {
		return Quote{}, domain.NewValidationError("total_price", "total price cannot be negative")
	}
	if e.limits.MaxTotalCents > 0 && q.TotalPriceCents > e.limits.MaxTotalCents {
		return Quote{}, domain.NewValidationError("total_price",
			fmt.Sprintf("total price %d exceeds the maximum of %d", q.TotalPriceCents, e.limits.MaxTotalCents))
	}
	return q, nil
}

// ComputeCancellation quotes a cancellation at instant at under the engine's policy.
func (e *Engine) ComputeCancellation(b *domain.Booking, at time.Time) CancellationQuote {
	return ComputeCancellation(b, at, e.policy)
}

// Tier charges FeePercent of the rental portion when cancelling at least
// MinHoursBeforeStart hours ahead of the start date.
type Tier struct {
	MinHoursBeforeStart float64 `json:"min_hours_before_start"`
	FeePercent          int     `json:"fee_percent"`
}

type CancellationPolicy struct {
	Tiers []Tier
	// NoCancellationWithinHours refuses cancellations this close to the start.
	NoCancellationWithinHours float64
}

// DefaultPolicy: free 3+ days out, half fee 1 to 3 days out, full fee after.
var DefaultPolicy = CancellationPolicy{
	Tiers: []Tier{
		{MinHoursBeforeStart: 72, FeePercent: 0},
		{MinHoursBeforeStart: 24, FeePercent: 50},
		{MinHoursBeforeStart: 0, FeePercent: 100},
	},
}

func (p CancellationPolicy) Validate() error {
	for i, t := range p.Tiers {
		if t.FeePercent < 0 || t.FeePercent > 100 {
			return fmt.Errorf("cancellation tier %d: fee percent must be between 0 and 100", i)
		}
		if t.MinHoursBeforeStart < 0 {
			return fmt.Errorf("cancellation tier %d: min hours before start cannot be negative", i)
		}
	}
	if p.NoCancellationWithinHours < 0 {
		return fmt.Errorf("no cancellation window cannot be negative")
	}
	return nil
}

func (p CancellationPolicy) normalized() CancellationPolicy {
	tiers := append([]Tier(nil), p.Tiers...)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].MinHoursBeforeStart > tiers[j].MinHoursBeforeStart
	})
	return CancellationPolicy{Tiers: tiers, NoCancellationWithinHours: p.NoCancellationWithinHours}
}

// feePercent returns the tier matching hoursUntilStart. Below every tier the
// whole rental portion is forfeited.
func (p CancellationPolicy) feePercent(hoursUntilStart float64) int {
	for _, t := range p.normalized().Tiers {
		if hoursUntilStart >= t.MinHoursBeforeStart {
			return t.FeePercent
		}
	}
	return 100
}

type CancellationReason string

const (
	ReasonAllowed              CancellationReason = "allowed"
	ReasonBookingClosed        CancellationReason = "booking_closed"
	ReasonRentalStarted        CancellationReason = "rental_started"
	ReasonNoCancellationWindow CancellationReason = "within_no_cancellation_window"
)

type CancellationQuote struct {
	CanCancel       bool               `json:"can_cancel"`
	Reason          CancellationReason `json:"reason"`
	FeePercent      int                `json:"fee_percent"`
	FeeCents        int64              `json:"fee_cents"`
	RefundCents     int64              `json:"refund_cents"`
	EligibleCents   int64              `json:"eligible_cents"`
	HoursUntilStart float64            `json:"hours_until_start"`
	DaysUntilStart  int                `json:"days_until_start"`
}

// ComputeCancellation splits the refundable amount into fee and refund.
// FeeCents + RefundCents always equals EligibleCents. The fee applies to the
// rental portion only; a captured deposit is returned in full.
func ComputeCancellation(b *domain.Booking, at time.Time, policy CancellationPolicy) CancellationQuote {
	hours := b.StartDate.Sub(at).Hours()
	q := CancellationQuote{
		Reason:          ReasonAllowed,
		HoursUntilStart: hours,
		DaysUntilStart:  int(math.Floor(hours / 24)),
	}

	switch {
	case b.Status == domain.BookingStatusCompleted,
		b.Status == domain.BookingStatusCancelled,
		b.Status == domain.BookingStatusRejected:
		q.Reason = ReasonBookingClosed
		return q
	case hours <= 0:
		q.Reason = ReasonRentalStarted
		return q
	case hours < policy.NoCancellationWithinHours:
		q.Reason = ReasonNoCancellationWindow
		return q
	}

	q.CanCancel = true
	q.FeePercent = policy.feePercent(hours)
	q.EligibleCents = max(b.RefundableCents(), 0)
	if q.EligibleCents == 0 {
		return q
	}

	deposit := min(b.CapturedDepositCents(), q.EligibleCents)
	rental := q.EligibleCents - deposit
	q.FeeCents = rental * int64(q.FeePercent) / 100
	q.RefundCents = q.EligibleCents - q.FeeCents
	return q
}
