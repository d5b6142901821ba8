package domain

import (
	"fmt"
	"time"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusApproved  BookingStatus = "approved"
	BookingStatusRejected  BookingStatus = "rejected"
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

var validTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusApproved, BookingStatusRejected, BookingStatusCancelled},
	BookingStatusApproved:  {BookingStatusActive, BookingStatusCancelled},
	BookingStatusActive:    {BookingStatusCompleted, BookingStatusCancelled},
	BookingStatusRejected:  {},
	BookingStatusCompleted: {},
	BookingStatusCancelled: {},
}

// AllBookingStatuses lists every booking status in lifecycle order.
var AllBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusApproved,
	BookingStatusRejected,
	BookingStatusActive,
	BookingStatusCompleted,
	BookingStatusCancelled,
}

func (s BookingStatus) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// BlocksCalendar reports whether a booking in this status reserves its dates.
// Pending requests do not.
func (s BookingStatus) BlocksCalendar() bool {
	return s == BookingStatusApproved || s == BookingStatusActive
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusFailed            PaymentStatus = "failed"
)

// failed -> pending is a payment retry with a fresh intent.
var validPaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:           {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusPaid:              {PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
	PaymentStatusPartiallyRefunded: {PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
	PaymentStatusRefunded:          {},
	PaymentStatusFailed:            {PaymentStatusPending, PaymentStatusPaid},
}

func (s PaymentStatus) IsValid() bool {
	_, ok := validPaymentTransitions[s]
	return ok
}

func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, t := range validPaymentTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Captured reports whether money has been taken from the renter.
func (s PaymentStatus) Captured() bool {
	return s == PaymentStatusPaid || s == PaymentStatusPartiallyRefunded || s == PaymentStatusRefunded
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	status := PaymentStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid payment status: %s", s)
	}
	return status, nil
}

type Fee struct {
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
}

type NotificationType string

const (
	NotificationStatusChange NotificationType = "status_change"
	NotificationPayment      NotificationType = "payment"
	NotificationCancellation NotificationType = "cancellation"
	NotificationRefund       NotificationType = "refund"
)

// BookingNotification is one entry of a booking's audit trail.
type BookingNotification struct {
	Type    NotificationType `json:"type"`
	Message string           `json:"message"`
	Read    bool             `json:"read"`
	Date    time.Time        `json:"date"`
}

type Booking struct {
	ID       string `json:"id"`
	ToolID   int32  `json:"tool_id"`
	RenterID int32  `json:"renter_id"`
	// OwnerID is copied from the tool at creation and never changes.
	OwnerID int32 `json:"owner_id"`

	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	DurationDays int       `json:"duration_days"`

	DailyPriceCents      int64  `json:"daily_price_cents"`
	DepositCents         int64  `json:"deposit_cents"`
	AdditionalFees       []Fee  `json:"additional_fees"`
	TotalPriceCents      int64  `json:"total_price_cents"`
	Currency             string `json:"currency"`
	ChargeDeposit        bool   `json:"charge_deposit"`
	CapturedCents        int64  `json:"captured_cents"`
	RefundedCents        int64  `json:"refunded_cents"`
	CancellationFeeCents int64  `json:"cancellation_fee_cents"`
	RefundAmountCents    int64  `json:"refund_amount_cents"`
	// RefundOwedCents is money promised back to the renter but not yet
	// refunded at the gateway.
	RefundOwedCents int64 `json:"refund_owed_cents"`
	DepositReleased bool  `json:"deposit_released"`

	Status          BookingStatus `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	PaymentChargeID string        `json:"payment_charge_id,omitempty"`

	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        *int32     `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`

	Notifications  []BookingNotification `json:"notifications"`
	IdempotencyKey string                `json:"-"`
	Version        int64                 `json:"version"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func (b *Booking) Range() DateRange {
	return DateRange{Start: b.StartDate, End: b.EndDate}
}

// AmountDueCents is what the payment intent is sized to.
func (b *Booking) AmountDueCents() int64 {
	if b.ChargeDeposit {
		return b.TotalPriceCents + b.DepositCents
	}
	return b.TotalPriceCents
}

// RefundableCents is the captured amount not yet returned.
func (b *Booking) RefundableCents() int64 {
	return b.CapturedCents - b.RefundedCents
}

// CapturedDepositCents is the deposit share of the captured amount.
func (b *Booking) CapturedDepositCents() int64 {
	if !b.ChargeDeposit || b.CapturedCents == 0 || b.DepositReleased {
		return 0
	}
	return min(b.DepositCents, b.CapturedCents)
}

// IsParticipant reports whether userID is the renter or the owner.
func (b *Booking) IsParticipant(userID int32) bool {
	return userID == b.RenterID || userID == b.OwnerID
}

// Clone returns a deep copy so transition functions never alias the caller's slices.
func (b Booking) Clone() Booking {
	cp := b
	cp.AdditionalFees = append([]Fee(nil), b.AdditionalFees...)
	cp.Notifications = append([]BookingNotification(nil), b.Notifications...)
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		cp.CancelledAt = &t
	}
	if b.CancelledBy != nil {
		id := *b.CancelledBy
		cp.CancelledBy = &id
	}
	return cp
}

// BookedPeriod is one calendar entry returned for display.
type BookedPeriod struct {
	BookingID string        `json:"booking_id"`
	StartDate time.Time     `json:"start_date"`
	EndDate   time.Time     `json:"end_date"`
	Status    BookingStatus `json:"status"`
}
