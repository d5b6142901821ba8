package domain

import (
	"strconv"
	"time"
)

type PaymentEventType string

const (
	PaymentEventSucceeded PaymentEventType = "succeeded"
	PaymentEventFailed    PaymentEventType = "failed"
	PaymentEventRefunded  PaymentEventType = "refunded"
	PaymentEventCanceled  PaymentEventType = "canceled"
)

// PaymentEvent is a gateway notification after parsing, independent of the
// provider's wire format.
type PaymentEvent struct {
	ID              string           `json:"id"`
	Type            PaymentEventType `json:"type"`
	PaymentIntentID string           `json:"payment_intent_id"`
	ChargeID        string           `json:"charge_id,omitempty"`
	// AmountCents is the captured amount for succeeded events and the
	// cumulative refunded amount for refunded events.
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	BookingID   string    `json:"booking_id,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// IdempotencyKey identifies duplicate deliveries. Refund events include the
// cumulative amount so successive partial refunds are distinct.
func (e PaymentEvent) IdempotencyKey() string {
	key := e.PaymentIntentID + ":" + string(e.Type)
	if e.Type == PaymentEventRefunded {
		key += ":" + strconv.FormatInt(e.AmountCents, 10)
	}
	return key
}

// PaymentIntent is the gateway's view of a charge.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Status       string `json:"status"`
	AmountCents  int64  `json:"amount_cents"`
	ChargeID     string `json:"charge_id,omitempty"`
	// LastError is set when the most recent confirmation attempt was declined.
	LastError string `json:"last_error,omitempty"`
}

// Gateway intent states, shared by every provider.
const (
	IntentStatusRequiresPaymentMethod = "requires_payment_method"
	IntentStatusRequiresConfirmation  = "requires_confirmation"
	IntentStatusRequiresAction        = "requires_action"
	IntentStatusProcessing            = "processing"
	IntentStatusRequiresCapture       = "requires_capture"
	IntentStatusSucceeded             = "succeeded"
	IntentStatusCanceled              = "canceled"
)

// EventFromIntent maps a terminal intent state to the event it implies, for
// synchronous confirmation and periodic sweeps. ok is false for in-flight states.
func EventFromIntent(intent *PaymentIntent, now time.Time) (PaymentEvent, bool) {
	ev := PaymentEvent{
		ID:              "sync_" + intent.ID + "_" + intent.Status,
		PaymentIntentID: intent.ID,
		ChargeID:        intent.ChargeID,
		AmountCents:     intent.AmountCents,
		Status:          intent.Status,
		ReceivedAt:      now,
	}
	switch intent.Status {
	case IntentStatusSucceeded:
		ev.Type = PaymentEventSucceeded
	case IntentStatusCanceled:
		ev.Type = PaymentEventCanceled
	case IntentStatusRequiresPaymentMethod:
		if intent.LastError == "" {
			return PaymentEvent{}, false
		}
		ev.Type = PaymentEventFailed
	default:
		return PaymentEvent{}, false
	}
	return ev, true
}
