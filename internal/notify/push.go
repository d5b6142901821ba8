package notify

import (
	"context"
	"fmt"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/logger"
	"ubertool-booking/internal/repository"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// messageSender is the part of *messaging.Client the sink uses.
type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushSink sends FCM pushes to the recipient's registered device.
type PushSink struct {
	client messageSender
	users  repository.UserRepository
}

func NewPushSink(client messageSender, users repository.UserRepository) *PushSink {
	return &PushSink{client: client, users: users}
}

// NewPushSinkFromCredentials initializes the Firebase app from a service
// account file.
func NewPushSinkFromCredentials(ctx context.Context, credentialsFile string, users repository.UserRepository) (*PushSink, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("firebase: error initializing app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: error getting Messaging client: %w", err)
	}
	return NewPushSink(client, users), nil
}

func (s *PushSink) Send(ctx context.Context, msg domain.Message) error {
	user, err := s.users.GetByID(ctx, msg.RecipientID)
	if err != nil {
		return fmt.Errorf("push: recipient %d: %w", msg.RecipientID, err)
	}
	if user.PushToken == "" {
		return nil
	}

	push := &messaging.Message{
		Token: user.PushToken,
		Notification: &messaging.Notification{
			Title: Title(msg.Type),
			Body:  msg.Message,
		},
		Data: map[string]string{
			"type":       string(msg.Type),
			"booking_id": msg.BookingID,
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	}

	logger.ExternalServiceCall("fcm", "Send", "bookingID", msg.BookingID, "recipientID", msg.RecipientID)
	id, err := s.client.Send(ctx, push)
	logger.ExternalServiceResult("fcm", "Send", err, "messageID", id)
	if err != nil {
		if messaging.IsRegistrationTokenNotRegistered(err) {
			logger.Warn("Push token no longer registered", "recipientID", msg.RecipientID)
			return nil
		}
		return fmt.Errorf("failed to send FCM message: %w", err)
	}
	return nil
}
