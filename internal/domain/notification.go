package domain

import "time"

// Notification is an in-app inbox entry for a user.
type Notification struct {
	ID         int32             `json:"id"`
	UserID     int32             `json:"user_id"`
	BookingID  string            `json:"booking_id"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	IsRead     bool              `json:"is_read"`
	Attributes map[string]string `json:"attributes"`
	CreatedOn  time.Time         `json:"created_on"`
}

// Message is what the lifecycle hands to a notification sink.
type Message struct {
	BookingID   string           `json:"booking_id"`
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`
	RecipientID int32            `json:"recipient_id"`
}
