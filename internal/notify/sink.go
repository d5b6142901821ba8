// Package notify delivers booking lifecycle messages to users. Delivery is
// fire-and-forget from the lifecycle's point of view: a failed channel is
// logged and never rolls back a booking transition.
package notify

import (
	"context"
	"errors"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/logger"
)

type Sink interface {
	Send(ctx context.Context, msg domain.Message) error
}

// Title is the short heading used by email subjects, push titles and inbox rows.
func Title(t domain.NotificationType) string {
	switch t {
	case domain.NotificationStatusChange:
		return "Booking update"
	case domain.NotificationPayment:
		return "Payment update"
	case domain.NotificationCancellation:
		return "Booking cancelled"
	case domain.NotificationRefund:
		return "Refund issued"
	default:
		return "Booking notification"
	}
}

// MultiSink fans a message out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, msg domain.Message) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes messages to the structured log. Used when no delivery
// channel is configured.
type LogSink struct{}

func (LogSink) Send(ctx context.Context, msg domain.Message) error {
	logger.InfoContext(ctx, "Booking notification",
		"booking_id", msg.BookingID,
		"recipient_id", msg.RecipientID,
		"type", msg.Type,
		"message", msg.Message)
	return nil
}
