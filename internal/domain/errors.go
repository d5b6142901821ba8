package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is; the concrete value is always *Error or
// *GatewayError.
var (
	ErrValidation             = errors.New("validation error")
	ErrConflict               = errors.New("conflict")
	ErrAuthorization          = errors.New("not authorized")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrNotFound               = errors.New("not found")
	ErrPaymentGateway         = errors.New("payment gateway error")
	ErrInvalidState           = errors.New("invalid state transition")

	// ErrDuplicateRequest is returned by gateways when an idempotency key is
	// already in flight. Callers treat it as success.
	ErrDuplicateRequest = errors.New("duplicate gateway request")
)

// Error carries the kind plus enough context for the caller to render a
// message: the booking involved and the offending field, if any.
type Error struct {
	Kind      error
	BookingID string
	Field     string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %s)", e.Field)
	}
	if e.BookingID != "" {
		msg += fmt.Sprintf(" (booking %s)", e.BookingID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// WithBooking returns a copy of e annotated with a booking id.
func (e *Error) WithBooking(id string) *Error {
	cp := *e
	cp.BookingID = id
	return &cp
}

func NewValidationError(field, msg string) *Error {
	return &Error{Kind: ErrValidation, Field: field, Message: msg}
}

func NewConflictError(bookingID, msg string) *Error {
	return &Error{Kind: ErrConflict, BookingID: bookingID, Message: msg}
}

func NewAuthorizationError(bookingID, msg string) *Error {
	return &Error{Kind: ErrAuthorization, BookingID: bookingID, Message: msg}
}

func NewConcurrentModificationError(bookingID string, err error) *Error {
	return &Error{Kind: ErrConcurrentModification, BookingID: bookingID, Message: "booking changed since it was read, retry", Err: err}
}

func NewNotFoundError(what, id string) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("%s %s not found", what, id)}
}

func NewInvalidStateError(bookingID string, from BookingStatus, action string) *Error {
	return &Error{Kind: ErrInvalidState, BookingID: bookingID, Message: fmt.Sprintf("cannot %s a booking in status %s", action, from)}
}

// GatewayError wraps a payment processor failure.
type GatewayError struct {
	Op        string
	Transient bool
	// OutcomeUnknown is set when the call timed out; the gateway may or may
	// not have applied it.
	OutcomeUnknown bool
	Err            error
}

func (e *GatewayError) Error() string {
	kind := "terminal"
	switch {
	case e.OutcomeUnknown:
		kind = "unknown outcome"
	case e.Transient:
		kind = "transient"
	}
	return fmt.Sprintf("payment gateway %s failed (%s): %v", e.Op, kind, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	return []error{ErrPaymentGateway, e.Err}
}

// IsTransient reports whether err is a gateway failure worth retrying.
func IsTransient(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Transient || gwErr.OutcomeUnknown
	}
	return false
}

// IsOutcomeUnknown reports whether err is a gateway call whose result is unknown.
func IsOutcomeUnknown(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.OutcomeUnknown
}
