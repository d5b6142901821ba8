package notify

import (
	"context"
	"fmt"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/logger"
	"ubertool-booking/internal/repository"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailSink sends messages through SendGrid to the recipient's address.
type EmailSink struct {
	apiKey    string
	fromEmail string
	fromName  string
	users     repository.UserRepository
	baseURL   string // overrides the SendGrid endpoint in tests
}

func NewEmailSink(apiKey, fromEmail, fromName string, users repository.UserRepository) *EmailSink {
	return &EmailSink{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
		users:     users,
	}
}

func (s *EmailSink) Send(ctx context.Context, msg domain.Message) error {
	user, err := s.users.GetByID(ctx, msg.RecipientID)
	if err != nil {
		return fmt.Errorf("email: recipient %d: %w", msg.RecipientID, err)
	}
	if user.Email == "" {
		return nil
	}

	subject := Title(msg.Type)
	plainText := fmt.Sprintf("Hello %s,\n\n%s\n\nBooking reference: %s\n\nBest regards,\nThe Ubertool Team", user.Name, msg.Message, msg.BookingID)
	htmlContent := fmt.Sprintf("<p>Hello %s,</p><p>%s</p><p>Booking reference: %s</p><p>Best regards,<br>The Ubertool Team</p>", user.Name, msg.Message, msg.BookingID)
	message := mail.NewSingleEmail(mail.NewEmail(s.fromName, s.fromEmail), subject, mail.NewEmail(user.Name, user.Email), plainText, htmlContent)

	// The client keeps the request body on itself, so each send gets its own.
	client := sendgrid.NewSendClient(s.apiKey)
	if s.baseURL != "" {
		client.BaseURL = s.baseURL
	}

	logger.ExternalServiceCall("sendgrid", "Send", "bookingID", msg.BookingID, "recipientID", msg.RecipientID)
	response, err := client.SendWithContext(ctx, message)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("sendgrid", "Send", err, "bookingID", msg.BookingID)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
