package domain

import (
	"fmt"
	"time"
)

// The functions below take a booking by value and return the updated copy.
// They never touch storage; the caller persists the result with the version
// it read.

func AddNotification(b Booking, typ NotificationType, msg string, now time.Time) Booking {
	out := b.Clone()
	out.Notifications = append(out.Notifications, BookingNotification{Type: typ, Message: msg, Date: now})
	return out
}

func transition(b Booking, to BookingStatus, action string, now time.Time) (Booking, error) {
	if !b.Status.CanTransitionTo(to) {
		return b, NewInvalidStateError(b.ID, b.Status, action)
	}
	out := b.Clone()
	out.Status = to
	out.UpdatedAt = now
	return out, nil
}

func Approve(b Booking, now time.Time) (Booking, error) {
	out, err := transition(b, BookingStatusApproved, "approve", now)
	if err != nil {
		return b, err
	}
	return AddNotification(out, NotificationStatusChange, "Your booking request was approved", now), nil
}

// Reject declines a pending request. Anything already captured is owed back.
func Reject(b Booking, now time.Time) (Booking, error) {
	out, err := transition(b, BookingStatusRejected, "reject", now)
	if err != nil {
		return b, err
	}
	if b.PaymentStatus.Captured() {
		out.RefundOwedCents = b.RefundableCents()
	}
	return AddNotification(out, NotificationStatusChange, "Your booking request was rejected", now), nil
}

// Activate moves an approved, paid booking to active. When requireStart is
// set the start date must also have arrived.
func Activate(b Booking, now time.Time, requireStart bool) (Booking, error) {
	if b.Status != BookingStatusApproved {
		return b, NewInvalidStateError(b.ID, b.Status, "activate")
	}
	if b.PaymentStatus != PaymentStatusPaid {
		return b, &Error{Kind: ErrInvalidState, BookingID: b.ID, Message: fmt.Sprintf("cannot activate with payment status %s", b.PaymentStatus)}
	}
	if requireStart && now.Before(b.StartDate) {
		return b, &Error{Kind: ErrInvalidState, BookingID: b.ID, Message: "start date has not arrived"}
	}
	out, err := transition(b, BookingStatusActive, "activate", now)
	if err != nil {
		return b, err
	}
	return AddNotification(out, NotificationStatusChange, "Your booking is now active", now), nil
}

// Complete closes an active booking and marks any captured deposit as owed
// back to the renter.
func Complete(b Booking, now time.Time) (Booking, error) {
	out, err := transition(b, BookingStatusCompleted, "complete", now)
	if err != nil {
		return b, err
	}
	if deposit := b.CapturedDepositCents(); deposit > 0 {
		out.RefundOwedCents += deposit
		out.DepositReleased = true
	}
	return AddNotification(out, NotificationStatusChange, "Your booking is complete", now), nil
}

// Cancel records cancellation metadata and the quoted fee split.
func Cancel(b Booking, actorID int32, reason string, feeCents, refundCents int64, now time.Time) (Booking, error) {
	out, err := transition(b, BookingStatusCancelled, "cancel", now)
	if err != nil {
		return b, err
	}
	at := now
	by := actorID
	out.CancelledAt = &at
	out.CancelledBy = &by
	out.CancellationReason = reason
	out.CancellationFeeCents = feeCents
	out.RefundAmountCents = refundCents
	out.RefundOwedCents += refundCents
	msg := "Booking was cancelled"
	if refundCents > 0 {
		msg = fmt.Sprintf("Booking was cancelled, %d cents will be refunded", refundCents)
	}
	return AddNotification(out, NotificationCancellation, msg, now), nil
}

// MarkPaid records a captured payment. It reports changed=false when the
// booking already reflects a capture, which makes repeated deliveries no-ops.
// A capture that lands after the booking was cancelled or rejected is owed
// back in full.
func MarkPaid(b Booking, chargeID string, amountCents int64, now time.Time) (Booking, bool, error) {
	if b.PaymentStatus.Captured() {
		return b, false, nil
	}
	if !b.PaymentStatus.CanTransitionTo(PaymentStatusPaid) {
		return b, false, &Error{Kind: ErrInvalidState, BookingID: b.ID, Message: fmt.Sprintf("cannot mark payment %s as paid", b.PaymentStatus)}
	}
	out := b.Clone()
	out.PaymentStatus = PaymentStatusPaid
	out.CapturedCents = amountCents
	if chargeID != "" {
		out.PaymentChargeID = chargeID
	}
	out.UpdatedAt = now
	if out.Status == BookingStatusCancelled || out.Status == BookingStatusRejected {
		out.RefundOwedCents = amountCents
	}
	return AddNotification(out, NotificationPayment, "Payment received", now), true, nil
}

// MarkPaymentFailed moves a pending payment to failed. Captured payments are
// never downgraded.
func MarkPaymentFailed(b Booking, now time.Time) (Booking, bool) {
	if b.PaymentStatus != PaymentStatusPending {
		return b, false
	}
	out := b.Clone()
	out.PaymentStatus = PaymentStatusFailed
	out.UpdatedAt = now
	return AddNotification(out, NotificationPayment, "Payment failed, please try another payment method", now), true
}

// ResetPayment starts a new payment attempt after a failure.
func ResetPayment(b Booking, intentID string, now time.Time) (Booking, error) {
	if b.PaymentStatus != PaymentStatusFailed && b.PaymentStatus != PaymentStatusPending {
		return b, &Error{Kind: ErrInvalidState, BookingID: b.ID, Message: fmt.Sprintf("cannot start a payment with payment status %s", b.PaymentStatus)}
	}
	out := b.Clone()
	out.PaymentStatus = PaymentStatusPending
	out.PaymentIntentID = intentID
	out.UpdatedAt = now
	return out, nil
}

// ApplyRefund records amountCents returned to the renter. The refund can
// never exceed what was captured and not yet refunded.
func ApplyRefund(b Booking, amountCents int64, now time.Time) (Booking, error) {
	if amountCents <= 0 {
		return b, NewValidationError("amount", "refund amount must be positive").WithBooking(b.ID)
	}
	if !b.PaymentStatus.Captured() {
		return b, &Error{Kind: ErrInvalidState, BookingID: b.ID, Message: fmt.Sprintf("cannot refund with payment status %s", b.PaymentStatus)}
	}
	if amountCents > b.RefundableCents() {
		return b, NewValidationError("amount", fmt.Sprintf("refund of %d exceeds refundable %d", amountCents, b.RefundableCents())).WithBooking(b.ID)
	}
	out := b.Clone()
	out.RefundedCents += amountCents
	out.RefundOwedCents = max(out.RefundOwedCents-amountCents, 0)
	if out.RefundedCents == out.CapturedCents {
		out.PaymentStatus = PaymentStatusRefunded
	} else {
		out.PaymentStatus = PaymentStatusPartiallyRefunded
	}
	out.UpdatedAt = now
	return AddNotification(out, NotificationRefund, fmt.Sprintf("Refund of %d cents issued", amountCents), now), nil
}
