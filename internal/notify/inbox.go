package notify

import (
	"context"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/repository"
)

// InboxSink stores messages as in-app notifications.
type InboxSink struct {
	notes repository.NotificationRepository
}

func NewInboxSink(notes repository.NotificationRepository) *InboxSink {
	return &InboxSink{notes: notes}
}

func (s *InboxSink) Send(ctx context.Context, msg domain.Message) error {
	return s.notes.Create(ctx, &domain.Notification{
		UserID:    msg.RecipientID,
		BookingID: msg.BookingID,
		Title:     Title(msg.Type),
		Message:   msg.Message,
		Attributes: map[string]string{
			"type":       string(msg.Type),
			"booking_id": msg.BookingID,
		},
	})
}
