package service

import (
	"context"
	"errors"
	"time"

	"ubertool-booking/internal/domain"
	"ubertool-booking/internal/lock"
	"ubertool-booking/internal/logger"
	"ubertool-booking/internal/notify"
	"ubertool-booking/internal/pricing"
	"ubertool-booking/internal/repository"

	"github.com/sethvargo/go-retry"
)

// AvailabilityChecker answers calendar questions for a tool. Only approved
// and active bookings reserve dates.
type AvailabilityChecker interface {
	IsAvailable(ctx context.Context, toolID int32, r domain.DateRange, excludingBookingID string) (bool, error)
	BookedPeriods(ctx context.Context, toolID int32) ([]domain.BookedPeriod, error)
}

// BookingService is the booking lifecycle. Every method returns a typed
// *domain.Error on failure.
type BookingService interface {
	CreateBooking(ctx context.Context, in CreateBookingInput) (*domain.Booking, error)
	ApproveBooking(ctx context.Context, ownerID int32, bookingID string) (*domain.Booking, error)
	RejectBooking(ctx context.Context, ownerID int32, bookingID string) (*domain.Booking, error)
	ActivateBooking(ctx context.Context, bookingID string) (*domain.Booking, error)
	// CompleteBooking closes an active booking. actorID 0 is the system
	// sweep, which may only complete bookings whose end date has passed.
	CompleteBooking(ctx context.Context, actorID int32, bookingID string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, userID int32, bookingID, reason string) (*domain.Booking, error)

	GetBooking(ctx context.Context, userID int32, bookingID string) (*domain.Booking, error)
	ListBookings(ctx context.Context, userID int32, role Role, status string, page, pageSize int32) ([]domain.Booking, int32, error)
	GetCancellationEligibility(ctx context.Context, userID int32, bookingID string) (*pricing.CancellationQuote, error)
	CheckAvailability(ctx context.Context, toolID int32, startDate, endDate string) (bool, error)
	GetBookedPeriods(ctx context.Context, toolID int32) ([]domain.BookedPeriod, error)
}

// PaymentCoordinator bridges bookings to the payment gateway.
type PaymentCoordinator interface {
	InitiatePayment(ctx context.Context, renterID int32, bookingID string) (*PaymentSession, error)
	ConfirmPayment(ctx context.Context, renterID int32, bookingID, paymentMethodID string) (*domain.Booking, error)
	// Reconcile applies a gateway event. Replaying an event is a no-op.
	Reconcile(ctx context.Context, ev domain.PaymentEvent) (*domain.Booking, error)
	// Refund returns amountCents of the captured payment and yields the
	// gateway's refund reference.
	Refund(ctx context.Context, bookingID string, amountCents int64) (string, error)
	// SettleRefund pays out whatever the booking still owes the renter.
	SettleRefund(ctx context.Context, bookingID string) (int64, error)
	ReleaseDeposit(ctx context.Context, bookingID string) (int64, error)
	VoidIntent(ctx context.Context, bookingID string) error
	// SyncPayment pulls the intent state from the gateway and reconciles it.
	SyncPayment(ctx context.Context, bookingID string) (*domain.Booking, error)
}

type NotificationService interface {
	GetNotifications(ctx context.Context, userID int32, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, userID, notificationID int32) error
}

type Role string

const (
	RoleRenter Role = "renter"
	RoleOwner  Role = "owner"
)

type CreateBookingInput struct {
	RenterID  int32
	ToolID    int32
	StartDate string
	EndDate   string
	// IdempotencyKey makes retried requests return the original booking.
	IdempotencyKey string
}

type PaymentSession struct {
	BookingID       string `json:"booking_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
}

// Config carries the booking settings the services need.
type Config struct {
	Currency      string
	ChargeDeposit bool
	// ActivateOnPayment activates an approved booking as soon as it is paid
	// instead of waiting for the start date.
	ActivateOnPayment bool
	LockTimeout       time.Duration
	// MaxConflictRetries bounds how often system paths re-run a transition
	// after losing an optimistic-concurrency race.
	MaxConflictRetries int
	Fees               []domain.Fee
	Now                func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Currency == "" {
		c.Currency = "usd"
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
	if c.MaxConflictRetries < 1 {
		c.MaxConflictRetries = 3
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// translate maps repository and lock errors onto the domain taxonomy.
func translate(bookingID string, err error) error {
	var domainErr *domain.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, repository.ErrVersionConflict), errors.Is(err, lock.ErrLockTimeout):
		return domain.NewConcurrentModificationError(bookingID, err)
	case errors.Is(err, repository.ErrOverlap):
		return &domain.Error{Kind: domain.ErrConflict, BookingID: bookingID, Message: "tool is already booked for an overlapping period", Err: err}
	case errors.Is(err, repository.ErrNotFound):
		return domain.NewNotFoundError("booking", bookingID)
	}
	return err
}

// mutator loads a booking, applies a pure transition and saves the result
// with the version it read.
type mutator struct {
	bookings repository.BookingRepository
}

// apply runs fn once. changed=false from fn skips the write.
func (m mutator) apply(ctx context.Context, bookingID string, fn func(b domain.Booking) (domain.Booking, bool, error)) (*domain.Booking, bool, error) {
	current, err := m.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, false, translate(bookingID, err)
	}
	out, changed, err := fn(*current)
	if err != nil {
		return current, false, err
	}
	if !changed {
		return current, false, nil
	}
	if err := m.bookings.Save(ctx, &out, current.Version); err != nil {
		return current, false, translate(bookingID, err)
	}
	return &out, true, nil
}

// applyWithRetry re-runs apply after a concurrent modification, at most
// attempts times in total. fn always sees freshly read state.
func (m mutator) applyWithRetry(ctx context.Context, attempts int, bookingID string, fn func(b domain.Booking) (domain.Booking, bool, error)) (*domain.Booking, bool, error) {
	var (
		result  *domain.Booking
		changed bool
	)
	b := retry.WithMaxRetries(uint64(max(attempts-1, 0)), retry.WithJitterPercent(20, retry.NewConstant(10*time.Millisecond)))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var err error
		result, changed, err = m.apply(ctx, bookingID, fn)
		if errors.Is(err, domain.ErrConcurrentModification) {
			logger.Debug("Retrying booking update after concurrent modification", "bookingID", bookingID)
			return retry.RetryableError(err)
		}
		return err
	})
	return result, changed, err
}

// notifier hands lifecycle messages to the sink and never fails the caller.
type notifier struct {
	sink notify.Sink
}

func (n notifier) send(ctx context.Context, b *domain.Booking, recipientID int32, typ domain.NotificationType, msg string) {
	if n.sink == nil || recipientID == 0 {
		return
	}
	err := n.sink.Send(ctx, domain.Message{BookingID: b.ID, Type: typ, Message: msg, RecipientID: recipientID})
	if err != nil {
		logger.WithBooking(b.ID).Warn("Failed to hand off notification", "recipientID", recipientID, "type", typ, "error", err)
	}
}
